package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/agents"
	"easyform/internal/models"
)

func TestNormalizeActionType(t *testing.T) {
	assert.Equal(t, models.ActionFillText, NormalizeActionType("fillText"))
	assert.Equal(t, models.ActionFillText, NormalizeActionType("setText"))
	assert.Equal(t, models.ActionFillText, NormalizeActionType("typeIntoField"))
	assert.Equal(t, models.ActionSelectRadio, NormalizeActionType(" selectRadio "))
	assert.Equal(t, models.ActionClick, NormalizeActionType("click"))

	// Aliasing is idempotent: a second pass changes nothing
	for _, raw := range []string{"setText", "fillText", "selectDropdown", "bogus"} {
		once := NormalizeActionType(raw)
		assert.Equal(t, once, NormalizeActionType(string(once)))
	}
}

func TestPostProcessActions_DropsNullValues(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "fillText", Selector: "#email", Value: nil},
		{ActionType: "click", Selector: "#submit", Value: nil},
		{ActionType: "selectCheckbox", Selector: "#agree", Value: nil},
		{ActionType: "fillText", Selector: "#name", Value: "Ada"},
	}

	actions := PostProcessActions("req-1", raw)
	require.Len(t, actions, 2)
	// click never requires a value, so the null survives
	assert.Equal(t, models.ActionClick, actions[0].ActionType)
	assert.Equal(t, "#submit", actions[0].Selector)
	assert.Equal(t, models.ActionFillText, actions[1].ActionType)
	assert.Equal(t, "Ada", actions[1].Value)
}

func TestPostProcessActions_DropsDuplicates(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "fillText", Selector: "#email", Value: "a@b.c"},
		{ActionType: "fillText", Selector: "  #email  ", Value: "a@b.c"},
		{ActionType: "fillText", Selector: "#email", Value: "other@b.c"},
	}

	actions := PostProcessActions("req-1", raw)
	require.Len(t, actions, 2)
	assert.Equal(t, "a@b.c", actions[0].Value)
	assert.Equal(t, "other@b.c", actions[1].Value)
}

func TestPostProcessActions_DuplicatesAreTypeAware(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "fillText", Selector: "#qty", Value: "1"},
		{ActionType: "fillText", Selector: "#qty", Value: float64(1)},
		{ActionType: "click", Selector: "#submit", Value: nil},
		{ActionType: "click", Selector: "#submit", Value: "<nil>"},
	}

	actions := PostProcessActions("req-1", raw)
	// The string "1" and the number 1 are different values, as are a
	// missing value and the literal string "<nil>"
	require.Len(t, actions, 4)
	assert.Equal(t, "1", actions[0].Value)
	assert.Equal(t, float64(1), actions[1].Value)
}

func TestPostProcessActions_RadioGroupKeepsLast(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "selectRadio", Selector: `input[data-field-index="3"][value="yes"]`, Value: nil, Label: "Do you agree?"},
		{ActionType: "fillText", Selector: "#comment", Value: "fine"},
		{ActionType: "selectRadio", Selector: `input[data-field-index="3"][value="no"]`, Value: nil, Label: "Do you agree?"},
	}

	actions := PostProcessActions("req-1", raw)
	require.Len(t, actions, 2)
	// The earlier radio of the same group is gone; survivors keep their order
	assert.Equal(t, models.ActionFillText, actions[0].ActionType)
	assert.Equal(t, models.ActionSelectRadio, actions[1].ActionType)
	assert.Contains(t, actions[1].Selector, `[value="no"]`)
}

func TestPostProcessActions_RadioGroupsDistinguishedByMarker(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "selectRadio", Selector: `input[data-row-index="0"][value="yes"]`, Value: nil, Label: "Rate"},
		{ActionType: "selectRadio", Selector: `input[data-row-index="1"][value="yes"]`, Value: nil, Label: "Rate"},
	}

	actions := PostProcessActions("req-1", raw)
	// Different rows are different groups even with identical labels
	assert.Len(t, actions, 2)
}

func TestPostProcessActions_RadioGroupByWholeSelectorWithoutMarker(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "selectRadio", Selector: "#opt-a", Value: nil, Label: "Choice"},
		{ActionType: "selectRadio", Selector: "#opt-a", Value: nil, Label: "CHOICE"},
		{ActionType: "selectRadio", Selector: "#opt-b", Value: nil, Label: "Choice"},
	}

	actions := PostProcessActions("req-1", raw)
	// Labels compare case-insensitively; #opt-a collapses, #opt-b survives
	require.Len(t, actions, 2)
	assert.Equal(t, "#opt-a", actions[0].Selector)
	assert.Equal(t, "#opt-b", actions[1].Selector)
}

func TestPostProcessActions_StampsOrderIndexes(t *testing.T) {
	raw := []agents.GeneratedAction{
		{ActionType: "fillText", Selector: "#a", Value: "1"},
		{ActionType: "fillText", Selector: "#b", Value: nil}, // dropped
		{ActionType: "click", Selector: "#c"},
	}

	actions := PostProcessActions("req-1", raw)
	require.Len(t, actions, 2)
	for i, action := range actions {
		assert.Equal(t, i, action.OrderIndex)
		assert.Equal(t, "req-1", action.RequestID)
	}
}

func TestRadioGroupKey_MarkerFragment(t *testing.T) {
	key := radioGroupKey(&models.FormAction{
		ActionType: models.ActionSelectRadio,
		Selector:   `form input[data-question-id="q7"][value="b"]`,
		Label:      "Pick One",
	})
	assert.Equal(t, `pick one|data-question-id="q7"]`, key)

	key = radioGroupKey(&models.FormAction{
		ActionType: models.ActionSelectRadio,
		Selector:   " #plain ",
		Label:      "Pick One",
	})
	assert.Equal(t, "pick one|#plain", key)
}
