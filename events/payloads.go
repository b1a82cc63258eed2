package events

import (
	"fmt"
	"time"

	"github.com/ripkitten-co/procview"
)

// Entity is the closed set of payload snapshots an event can carry.
type Entity interface {
	Kind() Kind
	Validate() error
}

func required(kind Kind, field, value string) error {
	if value == "" {
		return fmt.Errorf("%s: missing %s: %w", kind, field, procview.ErrValidation)
	}
	return nil
}

type ProcessInstance struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name,omitempty"`
	Description              string     `json:"description,omitempty"`
	ProcessDefinitionID      string     `json:"processDefinitionId,omitempty"`
	ProcessDefinitionKey     string     `json:"processDefinitionKey,omitempty"`
	ProcessDefinitionName    string     `json:"processDefinitionName,omitempty"`
	ProcessDefinitionVersion int        `json:"processDefinitionVersion,omitempty"`
	BusinessKey              string     `json:"businessKey,omitempty"`
	ParentID                 string     `json:"parentId,omitempty"`
	Initiator                string     `json:"initiator,omitempty"`
	StartDate                *time.Time `json:"startDate,omitempty"`
	Status                   string     `json:"status,omitempty"`
}

func (*ProcessInstance) Kind() Kind { return KindProcessInstance }
func (p *ProcessInstance) Validate() error {
	return required(KindProcessInstance, "id", p.ID)
}

// FlowElement is a node of a deployed process model. Containers
// (subProcess, eventSubProcess) hold nested elements.
type FlowElement struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name,omitempty"`
	MessageName string        `json:"messageName,omitempty"`
	AttachedTo  string        `json:"attachedTo,omitempty"`
	Elements    []FlowElement `json:"elements,omitempty"`
}

type ProcessDefinition struct {
	ID          string        `json:"id"`
	Key         string        `json:"key"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Version     int           `json:"version"`
	AppVersion  string        `json:"appVersion,omitempty"`
	Elements    []FlowElement `json:"elements,omitempty"`
}

func (*ProcessDefinition) Kind() Kind { return KindProcessDefinition }
func (d *ProcessDefinition) Validate() error {
	if err := required(KindProcessDefinition, "id", d.ID); err != nil {
		return err
	}
	return required(KindProcessDefinition, "key", d.Key)
}

type Task struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name,omitempty"`
	Description         string     `json:"description,omitempty"`
	Priority            int        `json:"priority,omitempty"`
	Assignee            string     `json:"assignee,omitempty"`
	Owner               string     `json:"owner,omitempty"`
	FormKey             string     `json:"formKey,omitempty"`
	DueDate             *time.Time `json:"dueDate,omitempty"`
	CreatedDate         *time.Time `json:"createdDate,omitempty"`
	ClaimedDate         *time.Time `json:"claimedDate,omitempty"`
	CompletedBy         string     `json:"completedBy,omitempty"`
	ProcessInstanceID   string     `json:"processInstanceId,omitempty"`
	ProcessDefinitionID string     `json:"processDefinitionId,omitempty"`
	ParentTaskID        string     `json:"parentTaskId,omitempty"`
	TaskDefinitionKey   string     `json:"taskDefinitionKey,omitempty"`
	BusinessKey         string     `json:"businessKey,omitempty"`
	Status              string     `json:"status,omitempty"`
}

func (*Task) Kind() Kind { return KindTask }
func (t *Task) Validate() error {
	return required(KindTask, "id", t.ID)
}

type CandidateUser struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
}

func (*CandidateUser) Kind() Kind { return KindCandidateUser }
func (c *CandidateUser) Validate() error {
	if err := required(KindCandidateUser, "taskId", c.TaskID); err != nil {
		return err
	}
	return required(KindCandidateUser, "userId", c.UserID)
}

type CandidateGroup struct {
	TaskID  string `json:"taskId"`
	GroupID string `json:"groupId"`
}

func (*CandidateGroup) Kind() Kind { return KindCandidateGroup }
func (c *CandidateGroup) Validate() error {
	if err := required(KindCandidateGroup, "taskId", c.TaskID); err != nil {
		return err
	}
	return required(KindCandidateGroup, "groupId", c.GroupID)
}

type Activity struct {
	ElementID           string `json:"elementId"`
	ActivityName        string `json:"activityName,omitempty"`
	ActivityType        string `json:"activityType,omitempty"`
	ExecutionID         string `json:"executionId,omitempty"`
	ProcessInstanceID   string `json:"processInstanceId"`
	ProcessDefinitionID string `json:"processDefinitionId,omitempty"`
	BusinessKey         string `json:"businessKey,omitempty"`
}

func (*Activity) Kind() Kind { return KindActivity }
func (a *Activity) Validate() error {
	if err := required(KindActivity, "elementId", a.ElementID); err != nil {
		return err
	}
	return required(KindActivity, "processInstanceId", a.ProcessInstanceID)
}

type SequenceFlow struct {
	ElementID               string `json:"elementId"`
	SourceActivityElementID string `json:"sourceActivityElementId,omitempty"`
	SourceActivityName      string `json:"sourceActivityName,omitempty"`
	SourceActivityType      string `json:"sourceActivityType,omitempty"`
	TargetActivityElementID string `json:"targetActivityElementId,omitempty"`
	TargetActivityName      string `json:"targetActivityName,omitempty"`
	TargetActivityType      string `json:"targetActivityType,omitempty"`
	ProcessInstanceID       string `json:"processInstanceId"`
	ProcessDefinitionID     string `json:"processDefinitionId,omitempty"`
}

func (*SequenceFlow) Kind() Kind { return KindSequenceFlow }
func (s *SequenceFlow) Validate() error {
	if err := required(KindSequenceFlow, "elementId", s.ElementID); err != nil {
		return err
	}
	return required(KindSequenceFlow, "processInstanceId", s.ProcessInstanceID)
}

// Variable is task scoped when TaskID is set, process scoped otherwise.
type Variable struct {
	Name              string `json:"name"`
	Type              string `json:"type,omitempty"`
	Value             any    `json:"value"`
	PreviousValue     any    `json:"previousValue,omitempty"`
	ProcessInstanceID string `json:"processInstanceId,omitempty"`
	TaskID            string `json:"taskId,omitempty"`
}

func (*Variable) Kind() Kind { return KindVariable }
func (v *Variable) Validate() error {
	if err := required(KindVariable, "name", v.Name); err != nil {
		return err
	}
	if v.TaskID == "" && v.ProcessInstanceID == "" {
		return fmt.Errorf("%s %q: needs processInstanceId or taskId: %w", KindVariable, v.Name, procview.ErrValidation)
	}
	return nil
}

// TaskScoped reports whether the variable belongs to a task.
func (v *Variable) TaskScoped() bool { return v.TaskID != "" }

type StackFrame struct {
	ClassName  string `json:"className,omitempty"`
	MethodName string `json:"methodName,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	LineNumber int    `json:"lineNumber,omitempty"`
}

type IntegrationContext struct {
	ID                  string         `json:"id"`
	ClientID            string         `json:"clientId,omitempty"`
	ClientName          string         `json:"clientName,omitempty"`
	ClientType          string         `json:"clientType,omitempty"`
	ConnectorType       string         `json:"connectorType,omitempty"`
	ExecutionID         string         `json:"executionId,omitempty"`
	ProcessInstanceID   string         `json:"processInstanceId,omitempty"`
	ProcessDefinitionID string         `json:"processDefinitionId,omitempty"`
	BusinessKey         string         `json:"businessKey,omitempty"`
	InBoundVariables    map[string]any `json:"inBoundVariables,omitempty"`
	OutBoundVariables   map[string]any `json:"outBoundVariables,omitempty"`
	ErrorCode           string         `json:"errorCode,omitempty"`
	ErrorMessage        string         `json:"errorMessage,omitempty"`
	ErrorClassName      string         `json:"errorClassName,omitempty"`
	StackTraceElements  []StackFrame   `json:"stackTraceElements,omitempty"`
}

func (*IntegrationContext) Kind() Kind { return KindIntegrationContext }
func (c *IntegrationContext) Validate() error {
	return required(KindIntegrationContext, "id", c.ID)
}

// Message is a BPMN message as thrown or awaited by a flow element.
type Message struct {
	Name                 string         `json:"name"`
	CorrelationKey       string         `json:"correlationKey,omitempty"`
	BusinessKey          string         `json:"businessKey,omitempty"`
	ElementID            string         `json:"elementId,omitempty"`
	ExecutionID          string         `json:"executionId,omitempty"`
	ProcessInstanceID    string         `json:"processInstanceId,omitempty"`
	ProcessDefinitionID  string         `json:"processDefinitionId,omitempty"`
	ProcessDefinitionKey string         `json:"processDefinitionKey,omitempty"`
	Variables            map[string]any `json:"variables,omitempty"`
	Destination          string         `json:"destination,omitempty"`
}

func (*Message) Kind() Kind { return KindMessage }
func (m *Message) Validate() error {
	return required(KindMessage, "name", m.Name)
}

type MessageSubscription struct {
	ID                  string    `json:"id"`
	EventName           string    `json:"eventName"`
	ConfigurationKey    string    `json:"configurationKey,omitempty"`
	ProcessInstanceID   string    `json:"processInstanceId"`
	ProcessDefinitionID string    `json:"processDefinitionId,omitempty"`
	ExecutionID         string    `json:"executionId,omitempty"`
	ActivityID          string    `json:"activityId,omitempty"`
	BusinessKey         string    `json:"businessKey,omitempty"`
	Created             time.Time `json:"created"`
}

func (*MessageSubscription) Kind() Kind { return KindMessageSubscription }
func (s *MessageSubscription) Validate() error {
	if err := required(KindMessageSubscription, "eventName", s.EventName); err != nil {
		return err
	}
	return required(KindMessageSubscription, "processInstanceId", s.ProcessInstanceID)
}

type StartMessageDeployment struct {
	ID                       string `json:"id"`
	MessageName              string `json:"messageName"`
	ElementID                string `json:"elementId,omitempty"`
	ProcessDefinitionID      string `json:"processDefinitionId"`
	ProcessDefinitionKey     string `json:"processDefinitionKey,omitempty"`
	ProcessDefinitionVersion int    `json:"processDefinitionVersion,omitempty"`
}

func (*StartMessageDeployment) Kind() Kind { return KindStartMessageDeployment }
func (s *StartMessageDeployment) Validate() error {
	return required(KindStartMessageDeployment, "messageName", s.MessageName)
}

// Raw carries the undecoded payload of an event type outside the known set.
type Raw []byte

func (Raw) Kind() Kind      { return KindUnknown }
func (Raw) Validate() error { return nil }

func newEntity(k Kind) Entity {
	switch k {
	case KindProcessInstance:
		return &ProcessInstance{}
	case KindProcessDefinition:
		return &ProcessDefinition{}
	case KindTask:
		return &Task{}
	case KindCandidateUser:
		return &CandidateUser{}
	case KindCandidateGroup:
		return &CandidateGroup{}
	case KindActivity:
		return &Activity{}
	case KindSequenceFlow:
		return &SequenceFlow{}
	case KindVariable:
		return &Variable{}
	case KindIntegrationContext:
		return &IntegrationContext{}
	case KindMessage:
		return &Message{}
	case KindMessageSubscription:
		return &MessageSubscription{}
	case KindStartMessageDeployment:
		return &StartMessageDeployment{}
	}
	return nil
}
