package models

// ActionType represents a browser action the extension can execute
type ActionType string

const (
	ActionFillText       ActionType = "fillText"
	ActionSelectDropdown ActionType = "selectDropdown"
	ActionSelectRadio    ActionType = "selectRadio"
	ActionSelectCheckbox ActionType = "selectCheckbox"
	ActionClick          ActionType = "click"
)

// IsValid checks if the action type is valid
func (t ActionType) IsValid() bool {
	switch t {
	case ActionFillText, ActionSelectDropdown, ActionSelectRadio, ActionSelectCheckbox, ActionClick:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action type
func (t ActionType) String() string {
	return string(t)
}

// RequiresValue reports whether a stored action of this type must carry a
// non-null value.
func (t ActionType) RequiresValue() bool {
	switch t {
	case ActionFillText, ActionSelectDropdown, ActionSelectCheckbox:
		return true
	default:
		return false
	}
}

// FormAction is one executable fill-in action produced by a completed request
type FormAction struct {
	RequestID  string      `json:"request_id"`
	ActionType ActionType  `json:"action_type"`
	Selector   string      `json:"selector"`
	Value      interface{} `json:"value,omitempty"`
	Label      string      `json:"label,omitempty"`
	Question   string      `json:"question,omitempty"`
	OrderIndex int         `json:"order_index"`
}

// FormActionDTO is the stored/returned JSON shape of an action
type FormActionDTO struct {
	ActionType string      `json:"action_type"`
	Selector   string      `json:"selector"`
	Value      interface{} `json:"value"`
	Label      string      `json:"label,omitempty"`
	Question   string      `json:"question,omitempty"`
	OrderIndex int         `json:"order_index"`
}

// ToDTO converts FormAction to DTO
func (a *FormAction) ToDTO() FormActionDTO {
	return FormActionDTO{
		ActionType: string(a.ActionType),
		Selector:   a.Selector,
		Value:      a.Value,
		Label:      a.Label,
		Question:   a.Question,
		OrderIndex: a.OrderIndex,
	}
}

// Validate checks if the action is valid
func (a *FormAction) Validate() error {
	if a.RequestID == "" {
		return &ValidationError{Field: "request_id", Message: "request ID is required"}
	}
	if !a.ActionType.IsValid() {
		return &ValidationError{Field: "action_type", Message: "invalid action type: " + string(a.ActionType)}
	}
	if a.Selector == "" {
		return &ValidationError{Field: "selector", Message: "selector is required"}
	}
	if a.OrderIndex < 0 {
		return &ValidationError{Field: "order_index", Message: "order index cannot be negative"}
	}
	return nil
}
