package query

import (
	"context"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/projections"
)

// Collection names of the read model. Tables are procview_<name>.
const (
	ProcessInstancesCollection   = "process_instances"
	ProcessDefinitionsCollection = "process_definitions"
	TasksCollection              = "tasks"
	CandidateUsersCollection     = "task_candidate_users"
	CandidateGroupsCollection    = "task_candidate_groups"
	ActivitiesCollection         = "activities"
	SequenceFlowsCollection      = "sequence_flows"
	VariablesCollection          = "variables"
	IntegrationsCollection       = "integration_contexts"
)

// Repositories is the scope query handlers write through. Every repository
// shares the unit of work it was opened in.
type Repositories interface {
	ProcessInstances() documents.Repository[ProcessInstance]
	ProcessDefinitions() documents.Repository[ProcessDefinition]
	Tasks() documents.Repository[Task]
	CandidateUsers() documents.Repository[TaskCandidateUser]
	CandidateGroups() documents.Repository[TaskCandidateGroup]
	Activities() documents.Repository[Activity]
	SequenceFlows() documents.Repository[SequenceFlow]
	Variables() documents.Repository[Variable]
	Integrations() documents.Repository[IntegrationContext]
}

type repositories struct {
	processInstances   documents.Repository[ProcessInstance]
	processDefinitions documents.Repository[ProcessDefinition]
	tasks              documents.Repository[Task]
	candidateUsers     documents.Repository[TaskCandidateUser]
	candidateGroups    documents.Repository[TaskCandidateGroup]
	activities         documents.Repository[Activity]
	sequenceFlows      documents.Repository[SequenceFlow]
	variables          documents.Repository[Variable]
	integrations       documents.Repository[IntegrationContext]
}

func (r *repositories) ProcessInstances() documents.Repository[ProcessInstance] {
	return r.processInstances
}

func (r *repositories) ProcessDefinitions() documents.Repository[ProcessDefinition] {
	return r.processDefinitions
}

func (r *repositories) Tasks() documents.Repository[Task] { return r.tasks }

func (r *repositories) CandidateUsers() documents.Repository[TaskCandidateUser] {
	return r.candidateUsers
}

func (r *repositories) CandidateGroups() documents.Repository[TaskCandidateGroup] {
	return r.candidateGroups
}

func (r *repositories) Activities() documents.Repository[Activity]       { return r.activities }
func (r *repositories) SequenceFlows() documents.Repository[SequenceFlow] { return r.sequenceFlows }
func (r *repositories) Variables() documents.Repository[Variable]         { return r.variables }

func (r *repositories) Integrations() documents.Repository[IntegrationContext] {
	return r.integrations
}

// PostgresRepositories binds the read model to b, a Store or a Session.
func PostgresRepositories(b procview.Backend) Repositories {
	return &repositories{
		processInstances:   documents.Collection[ProcessInstance](b, ProcessInstancesCollection),
		processDefinitions: documents.Collection[ProcessDefinition](b, ProcessDefinitionsCollection),
		tasks:              documents.Collection[Task](b, TasksCollection),
		candidateUsers:     documents.Collection[TaskCandidateUser](b, CandidateUsersCollection),
		candidateGroups:    documents.Collection[TaskCandidateGroup](b, CandidateGroupsCollection),
		activities:         documents.Collection[Activity](b, ActivitiesCollection),
		sequenceFlows:      documents.Collection[SequenceFlow](b, SequenceFlowsCollection),
		variables:          documents.Collection[Variable](b, VariablesCollection),
		integrations:       documents.Collection[IntegrationContext](b, IntegrationsCollection),
	}
}

// MemoryRepositories binds the read model to an in-memory store or transaction.
func MemoryRepositories(b documents.MemoryBackend) Repositories {
	return &repositories{
		processInstances:   documents.MemoryCollection[ProcessInstance](b, ProcessInstancesCollection),
		processDefinitions: documents.MemoryCollection[ProcessDefinition](b, ProcessDefinitionsCollection),
		tasks:              documents.MemoryCollection[Task](b, TasksCollection),
		candidateUsers:     documents.MemoryCollection[TaskCandidateUser](b, CandidateUsersCollection),
		candidateGroups:    documents.MemoryCollection[TaskCandidateGroup](b, CandidateGroupsCollection),
		activities:         documents.MemoryCollection[Activity](b, ActivitiesCollection),
		sequenceFlows:      documents.MemoryCollection[SequenceFlow](b, SequenceFlowsCollection),
		variables:          documents.MemoryCollection[Variable](b, VariablesCollection),
		integrations:       documents.MemoryCollection[IntegrationContext](b, IntegrationsCollection),
	}
}

// UnitOfWork opens one PostgreSQL session per event.
func UnitOfWork(store *procview.Store) projections.UnitOfWork[Repositories] {
	return projections.SessionUnitOfWork(store, PostgresRepositories)
}

// MemoryUnitOfWork opens one in-memory transaction per event.
func MemoryUnitOfWork(store *documents.MemoryStore) projections.UnitOfWork[Repositories] {
	return projections.UnitOfWorkFunc[Repositories](func(context.Context) (projections.Tx[Repositories], error) {
		tx := store.Begin()
		return &memoryTx{tx: tx, repos: MemoryRepositories(tx)}, nil
	})
}

type memoryTx struct {
	tx    *documents.MemoryTx
	repos Repositories
}

func (t *memoryTx) Scope() Repositories                { return t.repos }
func (t *memoryTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *memoryTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// Reset empties every read-model collection.
func Reset(ctx context.Context, r Repositories) error {
	steps := []func(context.Context) error{
		r.ProcessInstances().DeleteAll,
		r.ProcessDefinitions().DeleteAll,
		r.Tasks().DeleteAll,
		r.CandidateUsers().DeleteAll,
		r.CandidateGroups().DeleteAll,
		r.Activities().DeleteAll,
		r.SequenceFlows().DeleteAll,
		r.Variables().DeleteAll,
		r.Integrations().DeleteAll,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NewProjection wires the read model as a journal subscriber named "query".
// Rebuilding it empties every collection first.
func NewProjection(store *procview.Store, reg *projections.Registry[Repositories], opts ...projections.DispatcherOption) *projections.Projection[Repositories] {
	return projections.New("query", reg, UnitOfWork(store), opts...).
		OnReset(func(ctx context.Context) error {
			return Reset(ctx, PostgresRepositories(store))
		})
}
