package events

import "sort"

// Type is the stable discriminator carried in every event's eventType field.
type Type string

const (
	ProcessDeployed  Type = "PROCESS_DEPLOYED"
	ProcessCreated   Type = "PROCESS_CREATED"
	ProcessStarted   Type = "PROCESS_STARTED"
	ProcessUpdated   Type = "PROCESS_UPDATED"
	ProcessSuspended Type = "PROCESS_SUSPENDED"
	ProcessResumed   Type = "PROCESS_RESUMED"
	ProcessCompleted Type = "PROCESS_COMPLETED"
	ProcessCancelled Type = "PROCESS_CANCELLED"
	ProcessDeleted   Type = "PROCESS_DELETED"

	TaskCreated   Type = "TASK_CREATED"
	TaskUpdated   Type = "TASK_UPDATED"
	TaskAssigned  Type = "TASK_ASSIGNED"
	TaskActivated Type = "TASK_ACTIVATED"
	TaskSuspended Type = "TASK_SUSPENDED"
	TaskCompleted Type = "TASK_COMPLETED"
	TaskCancelled Type = "TASK_CANCELLED"

	TaskCandidateUserAdded    Type = "TASK_CANDIDATE_USER_ADDED"
	TaskCandidateUserRemoved  Type = "TASK_CANDIDATE_USER_REMOVED"
	TaskCandidateGroupAdded   Type = "TASK_CANDIDATE_GROUP_ADDED"
	TaskCandidateGroupRemoved Type = "TASK_CANDIDATE_GROUP_REMOVED"

	ActivityStarted   Type = "ACTIVITY_STARTED"
	ActivityCompleted Type = "ACTIVITY_COMPLETED"
	ActivityCancelled Type = "ACTIVITY_CANCELLED"
	SequenceFlowTaken Type = "SEQUENCE_FLOW_TAKEN"

	VariableCreated Type = "VARIABLE_CREATED"
	VariableUpdated Type = "VARIABLE_UPDATED"
	VariableDeleted Type = "VARIABLE_DELETED"

	IntegrationRequested      Type = "INTEGRATION_REQUESTED"
	IntegrationResultReceived Type = "INTEGRATION_RESULT_RECEIVED"
	IntegrationErrorReceived  Type = "INTEGRATION_ERROR_RECEIVED"

	// Emitted by the engine when a catch event starts waiting or a throw
	// event fires. Consumed by the correlation subsystem.
	ActivityMessageWaiting Type = "ACTIVITY_MESSAGE_WAITING"
	ActivityMessageSent    Type = "ACTIVITY_MESSAGE_SENT"

	// Emitted by the correlation subsystem.
	MessageSent                  Type = "MESSAGE_SENT"
	MessageWaiting               Type = "MESSAGE_WAITING"
	MessageReceived              Type = "MESSAGE_RECEIVED"
	MessageSubscriptionCancelled Type = "MESSAGE_SUBSCRIPTION_CANCELLED"
	StartMessageDeployed         Type = "START_MESSAGE_DEPLOYED"
)

// Kind names the payload family an event type carries.
type Kind string

const (
	KindProcessInstance        Kind = "ProcessInstance"
	KindProcessDefinition      Kind = "ProcessDefinition"
	KindTask                   Kind = "Task"
	KindCandidateUser          Kind = "CandidateUser"
	KindCandidateGroup         Kind = "CandidateGroup"
	KindActivity               Kind = "Activity"
	KindSequenceFlow           Kind = "SequenceFlow"
	KindVariable               Kind = "Variable"
	KindIntegrationContext     Kind = "IntegrationContext"
	KindMessage                Kind = "Message"
	KindMessageSubscription    Kind = "MessageSubscription"
	KindStartMessageDeployment Kind = "StartMessageDeployment"
	KindUnknown                Kind = "Unknown"
)

var kinds = map[Type]Kind{
	ProcessDeployed:  KindProcessDefinition,
	ProcessCreated:   KindProcessInstance,
	ProcessStarted:   KindProcessInstance,
	ProcessUpdated:   KindProcessInstance,
	ProcessSuspended: KindProcessInstance,
	ProcessResumed:   KindProcessInstance,
	ProcessCompleted: KindProcessInstance,
	ProcessCancelled: KindProcessInstance,
	ProcessDeleted:   KindProcessInstance,

	TaskCreated:   KindTask,
	TaskUpdated:   KindTask,
	TaskAssigned:  KindTask,
	TaskActivated: KindTask,
	TaskSuspended: KindTask,
	TaskCompleted: KindTask,
	TaskCancelled: KindTask,

	TaskCandidateUserAdded:    KindCandidateUser,
	TaskCandidateUserRemoved:  KindCandidateUser,
	TaskCandidateGroupAdded:   KindCandidateGroup,
	TaskCandidateGroupRemoved: KindCandidateGroup,

	ActivityStarted:   KindActivity,
	ActivityCompleted: KindActivity,
	ActivityCancelled: KindActivity,
	SequenceFlowTaken: KindSequenceFlow,

	VariableCreated: KindVariable,
	VariableUpdated: KindVariable,
	VariableDeleted: KindVariable,

	IntegrationRequested:      KindIntegrationContext,
	IntegrationResultReceived: KindIntegrationContext,
	IntegrationErrorReceived:  KindIntegrationContext,

	ActivityMessageWaiting: KindMessage,
	ActivityMessageSent:    KindMessage,

	MessageSent:                  KindMessage,
	MessageWaiting:               KindMessage,
	MessageReceived:              KindMessage,
	MessageSubscriptionCancelled: KindMessageSubscription,
	StartMessageDeployed:         KindStartMessageDeployment,
}

// KindOf returns the payload kind for t, or KindUnknown.
func KindOf(t Type) Kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return KindUnknown
}

// Known reports whether t belongs to the closed set of event types.
func Known(t Type) bool {
	_, ok := kinds[t]
	return ok
}

// AllTypes returns every known event type.
func AllTypes() []Type {
	out := make([]Type, 0, len(kinds))
	for t := range kinds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
