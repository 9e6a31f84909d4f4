package api

import (
	"context"

	"github.com/campuslive/lecturecast/internal/broadcast"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/service"
	"github.com/campuslive/lecturecast/internal/viewer"
)

// ViewerSession is the api's handle on a joined viewer leg.
type ViewerSession interface {
	State() viewer.AgentState
	Leave(ctx context.Context)
}

// SessionsService is what the handlers need from the sessions manager.
type SessionsService interface {
	CreateIngest(sessionID core.SessionID) (*broadcast.IngestSource, error)
	Host(ctx context.Context, req service.HostRequest) error
	StopHosting(ctx context.Context, sessionID core.SessionID, callerID core.ParticipantID) error
	Join(ctx context.Context, req service.JoinRequest) (ViewerSession, error)
}

// ManagerService adapts the concrete manager to the handler interface.
type ManagerService struct {
	Manager *service.LiveSessionsManager
}

func (s ManagerService) CreateIngest(sessionID core.SessionID) (*broadcast.IngestSource, error) {
	return s.Manager.CreateIngest(sessionID)
}

func (s ManagerService) Host(ctx context.Context, req service.HostRequest) error {
	return s.Manager.Host(ctx, req)
}

func (s ManagerService) StopHosting(ctx context.Context, sessionID core.SessionID, callerID core.ParticipantID) error {
	return s.Manager.StopHosting(ctx, sessionID, callerID)
}

func (s ManagerService) Join(ctx context.Context, req service.JoinRequest) (ViewerSession, error) {
	return s.Manager.Join(ctx, req)
}
