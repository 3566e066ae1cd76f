package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"easyform/internal/agents"
	"easyform/internal/models"
)

// radioGroupMarkers are checked in order; the first one present in the
// selector contributes the group-distinguishing fragment.
var radioGroupMarkers = []string{
	"data-field-index",
	"data-row-index",
	"data-row-id",
	"data-question-id",
}

// NormalizeActionType maps an incoming action type onto the stored set.
// setText and every unrecognized type become fillText, so the mapping is
// idempotent.
func NormalizeActionType(actionType string) models.ActionType {
	switch t := models.ActionType(strings.TrimSpace(actionType)); t {
	case models.ActionFillText, models.ActionSelectDropdown, models.ActionSelectRadio,
		models.ActionSelectCheckbox, models.ActionClick:
		return t
	default:
		return models.ActionFillText
	}
}

// PostProcessActions applies the persistence rules to raw generated actions:
// alias the action type, drop value-requiring actions without a value, remove
// exact duplicates, collapse radio groups keeping the last action, and stamp
// order indexes.
func PostProcessActions(requestID string, raw []agents.GeneratedAction) []*models.FormAction {
	actions := make([]*models.FormAction, 0, len(raw))
	for _, generated := range raw {
		actionType := NormalizeActionType(generated.ActionType)
		if actionType.RequiresValue() && generated.Value == nil {
			continue
		}
		actions = append(actions, &models.FormAction{
			RequestID:  requestID,
			ActionType: actionType,
			Selector:   generated.Selector,
			Value:      generated.Value,
			Label:      generated.Label,
			Question:   generated.Question,
		})
	}

	actions = dropDuplicateActions(actions)
	actions = collapseRadioGroups(actions)

	for i, action := range actions {
		action.OrderIndex = i
	}
	return actions
}

// dropDuplicateActions removes later actions whose (type, trimmed selector,
// value) triple already appeared. Values are compared through their JSON
// encoding so "1" and 1 stay distinct.
func dropDuplicateActions(actions []*models.FormAction) []*models.FormAction {
	seen := make(map[string]bool, len(actions))
	out := make([]*models.FormAction, 0, len(actions))
	for _, action := range actions {
		key := fmt.Sprintf("%s|%s|%s", action.ActionType, strings.TrimSpace(action.Selector), encodeValueKey(action.Value))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, action)
	}
	return out
}

func encodeValueKey(value interface{}) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

// collapseRadioGroups keeps only the last selectRadio action of each radio
// group while preserving the overall order of the surviving actions.
func collapseRadioGroups(actions []*models.FormAction) []*models.FormAction {
	lastOfGroup := make(map[string]int)
	for i, action := range actions {
		if action.ActionType == models.ActionSelectRadio {
			lastOfGroup[radioGroupKey(action)] = i
		}
	}

	out := make([]*models.FormAction, 0, len(actions))
	for i, action := range actions {
		if action.ActionType == models.ActionSelectRadio {
			if lastOfGroup[radioGroupKey(action)] != i {
				continue
			}
		}
		out = append(out, action)
	}
	return out
}

// radioGroupKey builds the group identity from the lowercase label and a
// selector fragment: the first recognized data attribute in the selector, or
// the whole trimmed selector when none is present.
func radioGroupKey(action *models.FormAction) string {
	selector := strings.TrimSpace(action.Selector)
	fragment := selector
	for _, marker := range radioGroupMarkers {
		idx := strings.Index(selector, marker)
		if idx < 0 {
			continue
		}
		rest := selector[idx:]
		if end := strings.IndexAny(rest, "]"); end >= 0 {
			fragment = rest[:end+1]
		} else {
			fragment = rest
		}
		break
	}
	return strings.ToLower(strings.TrimSpace(action.Label)) + "|" + fragment
}
