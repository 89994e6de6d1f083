package resolver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForName(t *testing.T) {
	policy, err := ForName("")
	require.NoError(t, err)
	assert.Equal(t, PolicyServerWins, policy.Name())

	policy, err = ForName(PolicyFieldMerge)
	require.NoError(t, err)
	assert.Equal(t, PolicyFieldMerge, policy.Name())

	_, err = ForName("client-wins")
	assert.Error(t, err)
}

func TestServerWins_DiscardsWholePatch(t *testing.T) {
	current := json.RawMessage(`{"status":"COMPLETED","note":"done"}`)
	patch := json.RawMessage(`{"status":"IN_PROGRESS","note":"half way"}`)

	decision, err := ServerWins{}.Resolve(current, patch, []string{"status"})
	require.NoError(t, err)

	assert.False(t, decision.Changed)
	assert.Nil(t, decision.Merged)
	assert.ElementsMatch(t, []string{"status", "note"}, decision.Overridden)
}

func TestServerWins_Deterministic(t *testing.T) {
	// Результат не зависит от порядка прибытия: сервер уже хранит
	// победившее значение, любой устаревший патч отбрасывается целиком
	current := json.RawMessage(`{"status":"COMPLETED"}`)
	first := json.RawMessage(`{"status":"IN_PROGRESS"}`)
	second := json.RawMessage(`{"status":"ON_HOLD"}`)

	d1, err := ServerWins{}.Resolve(current, first, []string{"status"})
	require.NoError(t, err)
	d2, err := ServerWins{}.Resolve(current, second, []string{"status"})
	require.NoError(t, err)

	assert.False(t, d1.Changed)
	assert.False(t, d2.Changed)
}

func TestFieldMerge_DisjointFieldsSurvive(t *testing.T) {
	current := json.RawMessage(`{"status":"COMPLETED","note":""}`)
	patch := json.RawMessage(`{"status":"IN_PROGRESS","note":"pump was leaking"}`)

	// Сервер после базиса клиента менял только status
	decision, err := FieldMerge{}.Resolve(current, patch, []string{"status"})
	require.NoError(t, err)

	assert.True(t, decision.Changed)
	assert.Equal(t, []string{"status"}, decision.Overridden)

	var merged map[string]string
	require.NoError(t, json.Unmarshal(decision.Merged, &merged))
	assert.Equal(t, "COMPLETED", merged["status"], "server value wins for the overlap")
	assert.Equal(t, "pump was leaking", merged["note"], "disjoint field is retained")
}

func TestFieldMerge_FullOverlapFallsBackToServerWins(t *testing.T) {
	current := json.RawMessage(`{"status":"COMPLETED"}`)
	patch := json.RawMessage(`{"status":"IN_PROGRESS"}`)

	decision, err := FieldMerge{}.Resolve(current, patch, []string{"status"})
	require.NoError(t, err)

	assert.False(t, decision.Changed)
	assert.Equal(t, []string{"status"}, decision.Overridden)
}

func TestChangedFields(t *testing.T) {
	before := json.RawMessage(`{"status":"OPEN","title":"Replace bearing"}`)
	after := json.RawMessage(`{"status":"COMPLETED","title":"Replace bearing","completed_by":"tech-7"}`)

	fields, err := ChangedFields(before, after)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"status", "completed_by"}, fields)
}

func TestChangedFields_CreateAndDelete(t *testing.T) {
	// CREATE: before пустой - изменены все поля after
	fields, err := ChangedFields(nil, json.RawMessage(`{"id":"wo-1","status":"OPEN"}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "status"}, fields)

	// DELETE: after пустой - изменены все поля before
	fields, err = ChangedFields(json.RawMessage(`{"id":"wo-1"}`), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id"}, fields)
}
