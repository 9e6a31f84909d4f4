package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// ConsoleLoginHandler exchanges a valid campus token for the presenter
// console cookie, so the web console does not have to attach X-Auth to
// every request and to the websocket upgrade.
func (app *App) ConsoleLoginHandler(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	identity, err := app.Auth.verify(token)
	if err != nil {
		log.Debug().Err(err).Str("service", "api").Msg("console login rejected")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	console, _ := app.Auth.cookieStore.Get(r, ConsoleSessionName)
	console.Values["id"] = string(identity.ID)
	console.Values["name"] = identity.DisplayName
	if err := console.Save(r, w); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot save console session")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *App) ConsoleLogoutHandler(w http.ResponseWriter, r *http.Request) {
	console, _ := app.Auth.cookieStore.Get(r, ConsoleSessionName)
	console.Options.MaxAge = -1
	if err := console.Save(r, w); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot clear console session")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
