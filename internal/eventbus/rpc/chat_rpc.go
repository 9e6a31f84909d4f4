package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type ChatParams struct {
	MessageMeta
	ID         string             `json:"id"`
	AuthorID   core.ParticipantID `json:"author_id"`
	AuthorName string             `json:"author_name"`
	Text       string             `json:"text"`
}

type ChatRpc struct {
	jsonRpcHead
	Params ChatParams `json:"params"`
}

func NewChatMessageRpc(sessionID core.SessionID, id string, authorID core.ParticipantID, authorName, text string) *ChatRpc {
	return &ChatRpc{
		jsonRpcHead: newHead(ChatMessageMethod),
		Params: ChatParams{
			MessageMeta: newMeta(sessionID),
			ID:          id,
			AuthorID:    authorID,
			AuthorName:  authorName,
			Text:        text,
		},
	}
}

func (r ChatRpc) GetMethod() Method {
	return r.Method
}

func (r ChatRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
