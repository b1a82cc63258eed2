package query

import (
	"time"

	"github.com/ripkitten-co/procview/events"
)

// Source is the producer identity copied onto every projected row.
type Source struct {
	AppName         string `json:"appName,omitempty"`
	AppVersion      string `json:"appVersion,omitempty"`
	ServiceName     string `json:"serviceName,omitempty"`
	ServiceFullName string `json:"serviceFullName,omitempty"`
	ServiceType     string `json:"serviceType,omitempty"`
	ServiceVersion  string `json:"serviceVersion,omitempty"`
}

func sourceOf(evt events.Event) Source {
	p := evt.Producer
	return Source{
		AppName:         p.AppName,
		AppVersion:      p.AppVersion,
		ServiceName:     p.ServiceName,
		ServiceFullName: p.ServiceFullName,
		ServiceType:     p.ServiceType,
		ServiceVersion:  p.ServiceVersion,
	}
}

type ProcessStatus string

const (
	ProcessCreated   ProcessStatus = "CREATED"
	ProcessRunning   ProcessStatus = "RUNNING"
	ProcessSuspended ProcessStatus = "SUSPENDED"
	ProcessCancelled ProcessStatus = "CANCELLED"
	ProcessCompleted ProcessStatus = "COMPLETED"
)

func (s ProcessStatus) Terminal() bool {
	return s == ProcessCancelled || s == ProcessCompleted
}

type ProcessInstance struct {
	ID                       string        `json:"id"`
	Name                     string        `json:"name,omitempty"`
	Description              string        `json:"description,omitempty"`
	ProcessDefinitionID      string        `json:"processDefinitionId,omitempty"`
	ProcessDefinitionKey     string        `json:"processDefinitionKey,omitempty" procview:"index"`
	ProcessDefinitionName    string        `json:"processDefinitionName,omitempty"`
	ProcessDefinitionVersion int           `json:"processDefinitionVersion,omitempty"`
	BusinessKey              string        `json:"businessKey,omitempty" procview:"index"`
	ParentID                 string        `json:"parentId,omitempty"`
	Initiator                string        `json:"initiator,omitempty"`
	Status                   ProcessStatus `json:"status"`
	StartDate                *time.Time    `json:"startDate,omitempty"`
	CompletedDate            *time.Time    `json:"completedDate,omitempty"`
	SuspendedDate            *time.Time    `json:"suspendedDate,omitempty"`
	LastModified             time.Time     `json:"lastModified"`
	LastPosition             int64         `json:"lastPosition,omitempty"`
	Source
	Version int `json:"-"`
}

type ProcessDefinition struct {
	ID                string `json:"id"`
	Key               string `json:"key" procview:"index"`
	Name              string `json:"name,omitempty"`
	Description       string `json:"description,omitempty"`
	DefinitionVersion int    `json:"definitionVersion"`
	DeployedAppVer    string `json:"deployedAppVersion,omitempty"`
	Source
	Version int `json:"-"`
}

type TaskStatus string

const (
	TaskCreated   TaskStatus = "CREATED"
	TaskAssigned  TaskStatus = "ASSIGNED"
	TaskSuspended TaskStatus = "SUSPENDED"
	TaskCancelled TaskStatus = "CANCELLED"
	TaskCompleted TaskStatus = "COMPLETED"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCancelled || s == TaskCompleted
}

type Task struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name,omitempty"`
	Description         string     `json:"description,omitempty"`
	Priority            int        `json:"priority"`
	Assignee            string     `json:"assignee,omitempty" procview:"index"`
	Owner               string     `json:"owner,omitempty"`
	FormKey             string     `json:"formKey,omitempty"`
	DueDate             *time.Time `json:"dueDate,omitempty"`
	CreatedDate         *time.Time `json:"createdDate,omitempty"`
	ClaimedDate         *time.Time `json:"claimedDate,omitempty"`
	CompletedDate       *time.Time `json:"completedDate,omitempty"`
	CompletedBy         string     `json:"completedBy,omitempty"`
	ProcessInstanceID   string     `json:"processInstanceId,omitempty" procview:"index"`
	ProcessDefinitionID string     `json:"processDefinitionId,omitempty"`
	ParentTaskID        string     `json:"parentTaskId,omitempty"`
	TaskDefinitionKey   string     `json:"taskDefinitionKey,omitempty"`
	BusinessKey         string     `json:"businessKey,omitempty"`
	Status              TaskStatus `json:"status"`
	// PreviousStatus is what TASK_ACTIVATED returns to after a suspension.
	PreviousStatus TaskStatus `json:"previousStatus,omitempty"`
	LastModified   time.Time  `json:"lastModified"`
	LastPosition   int64      `json:"lastPosition,omitempty"`
	Source
	Version int `json:"-"`
}

type TaskCandidateUser struct {
	ID      string `json:"id"`
	TaskID  string `json:"taskId" procview:"index"`
	UserID  string `json:"userId"`
	Version int    `json:"-"`
}

type TaskCandidateGroup struct {
	ID      string `json:"id"`
	TaskID  string `json:"taskId" procview:"index"`
	GroupID string `json:"groupId"`
	Version int    `json:"-"`
}

type ActivityStatus string

const (
	ActivityStarted   ActivityStatus = "STARTED"
	ActivityCompleted ActivityStatus = "COMPLETED"
	ActivityCancelled ActivityStatus = "CANCELLED"
	ActivityError     ActivityStatus = "ERROR"
)

func (s ActivityStatus) Terminal() bool {
	return s == ActivityCompleted || s == ActivityCancelled
}

// ServiceTaskType is the activity type of BPMN service tasks.
const ServiceTaskType = "serviceTask"

type Activity struct {
	ID                  string         `json:"id"`
	ElementID           string         `json:"elementId"`
	ActivityName        string         `json:"activityName,omitempty"`
	ActivityType        string         `json:"activityType,omitempty" procview:"index"`
	ExecutionID         string         `json:"executionId,omitempty"`
	ProcessInstanceID   string         `json:"processInstanceId" procview:"index"`
	ProcessDefinitionID string         `json:"processDefinitionId,omitempty"`
	BusinessKey         string         `json:"businessKey,omitempty"`
	Status              ActivityStatus `json:"status"`
	StartedDate         *time.Time     `json:"startedDate,omitempty"`
	CompletedDate       *time.Time     `json:"completedDate,omitempty"`
	CancelledDate       *time.Time     `json:"cancelledDate,omitempty"`
	Source
	Version int `json:"-"`
}

type SequenceFlow struct {
	ID                      string    `json:"id"`
	ElementID               string    `json:"elementId"`
	SourceActivityElementID string    `json:"sourceActivityElementId,omitempty"`
	SourceActivityName      string    `json:"sourceActivityName,omitempty"`
	SourceActivityType      string    `json:"sourceActivityType,omitempty"`
	TargetActivityElementID string    `json:"targetActivityElementId,omitempty"`
	TargetActivityName      string    `json:"targetActivityName,omitempty"`
	TargetActivityType      string    `json:"targetActivityType,omitempty"`
	ProcessInstanceID       string    `json:"processInstanceId" procview:"index"`
	ProcessDefinitionID     string    `json:"processDefinitionId,omitempty"`
	Date                    time.Time `json:"date"`
	Source
	Version int `json:"-"`
}

type Variable struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type,omitempty"`
	Value             any        `json:"value"`
	ProcessInstanceID string     `json:"processInstanceId,omitempty" procview:"index"`
	TaskID            string     `json:"taskId,omitempty" procview:"index"`
	CreateTime        *time.Time `json:"createTime,omitempty"`
	LastUpdatedTime   time.Time  `json:"lastUpdatedTime"`
	MarkedAsDeleted   bool       `json:"markedAsDeleted"`
	Source
	Version int `json:"-"`
}

// TaskScoped reports whether the variable belongs to a task.
func (v *Variable) TaskScoped() bool { return v.TaskID != "" }

type IntegrationStatus string

const (
	IntegrationRequested      IntegrationStatus = "INTEGRATION_REQUESTED"
	IntegrationResultReceived IntegrationStatus = "INTEGRATION_RESULT_RECEIVED"
	IntegrationErrorReceived  IntegrationStatus = "INTEGRATION_ERROR_RECEIVED"
)

type StackFrame struct {
	ClassName  string `json:"className,omitempty"`
	MethodName string `json:"methodName,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	LineNumber int    `json:"lineNumber,omitempty"`
}

type IntegrationContext struct {
	ID                  string            `json:"id"`
	Status              IntegrationStatus `json:"status"`
	ClientID            string            `json:"clientId,omitempty"`
	ClientName          string            `json:"clientName,omitempty"`
	ClientType          string            `json:"clientType,omitempty"`
	ConnectorType       string            `json:"connectorType,omitempty"`
	ExecutionID         string            `json:"executionId,omitempty"`
	ProcessInstanceID   string            `json:"processInstanceId,omitempty" procview:"index"`
	ProcessDefinitionID string            `json:"processDefinitionId,omitempty"`
	BusinessKey         string            `json:"businessKey,omitempty"`
	InBoundVariables    map[string]any    `json:"inBoundVariables,omitempty"`
	OutBoundVariables   map[string]any    `json:"outBoundVariables,omitempty"`
	RequestDate         *time.Time        `json:"requestDate,omitempty"`
	ResultDate          *time.Time        `json:"resultDate,omitempty"`
	ErrorDate           *time.Time        `json:"errorDate,omitempty"`
	ErrorCode           string            `json:"errorCode,omitempty"`
	ErrorMessage        string            `json:"errorMessage,omitempty"`
	ErrorClassName      string            `json:"errorClassName,omitempty"`
	StackTraceElements  []StackFrame      `json:"stackTraceElements,omitempty"`
	Source
	Version int `json:"-"`
}
