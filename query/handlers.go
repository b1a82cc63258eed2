// Package query projects process events into the queryable read model:
// process instances and definitions, tasks and their candidates, activities,
// sequence flows, variables and service-task integration contexts.
package query

import (
	"log/slog"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

// DefaultErrorMessageLength bounds stored integration error messages.
const DefaultErrorMessageLength = 255

type Option func(*handlers)

func WithLogger(l *slog.Logger) Option {
	return func(h *handlers) { h.logger = l }
}

// WithErrorMessageLength sets the maximum stored length, in runes, of
// integration error messages.
func WithErrorMessageLength(n int) Option {
	return func(h *handlers) { h.maxErrorMessage = n }
}

type handlers struct {
	logger          *slog.Logger
	maxErrorMessage int
}

// Handlers returns one handler per event type the read model consumes.
func Handlers(opts ...Option) []projections.Handler[Repositories] {
	h := &handlers{
		logger:          slog.Default(),
		maxErrorMessage: DefaultErrorMessageLength,
	}
	for _, o := range opts {
		o(h)
	}

	return []projections.Handler[Repositories]{
		projections.On(events.ProcessDeployed, h.processDeployed),
		projections.On(events.ProcessCreated, h.processCreated),
		projections.On(events.ProcessStarted, h.processStarted),
		projections.On(events.ProcessUpdated, h.processUpdated),
		projections.On(events.ProcessSuspended, h.processSuspended),
		projections.On(events.ProcessResumed, h.processResumed),
		projections.On(events.ProcessCompleted, h.processCompleted),
		projections.On(events.ProcessCancelled, h.processCancelled),
		projections.On(events.ProcessDeleted, h.processDeleted),

		projections.On(events.TaskCreated, h.taskCreated),
		projections.On(events.TaskUpdated, h.taskUpdated),
		projections.On(events.TaskAssigned, h.taskAssigned),
		projections.On(events.TaskActivated, h.taskActivated),
		projections.On(events.TaskSuspended, h.taskSuspended),
		projections.On(events.TaskCompleted, h.taskCompleted),
		projections.On(events.TaskCancelled, h.taskCancelled),

		projections.On(events.TaskCandidateUserAdded, h.candidateUserAdded),
		projections.On(events.TaskCandidateUserRemoved, h.candidateUserRemoved),
		projections.On(events.TaskCandidateGroupAdded, h.candidateGroupAdded),
		projections.On(events.TaskCandidateGroupRemoved, h.candidateGroupRemoved),

		projections.On(events.ActivityStarted, h.activityStarted),
		projections.On(events.ActivityCompleted, h.activityCompleted),
		projections.On(events.ActivityCancelled, h.activityCancelled),
		projections.On(events.SequenceFlowTaken, h.sequenceFlowTaken),

		projections.On(events.VariableCreated, h.variableCreated),
		projections.On(events.VariableUpdated, h.variableUpdated),
		projections.On(events.VariableDeleted, h.variableDeleted),

		projections.On(events.IntegrationRequested, h.integrationRequested),
		projections.On(events.IntegrationResultReceived, h.integrationResultReceived),
		projections.On(events.IntegrationErrorReceived, h.integrationErrorReceived),
	}
}

// NewRegistry builds the registry of every read-model handler.
func NewRegistry(opts ...Option) (*projections.Registry[Repositories], error) {
	return projections.NewRegistry(Handlers(opts...)...)
}
