package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastUserText(t *testing.T) {
	ctx := &Context{
		ConversationID: "c1",
		PriorTurns: []Turn{
			{Role: RoleUser, Text: "portami a Bologna"},
			{Role: RoleAssistant, Text: "Percorso impostato."},
		},
	}
	assert.Equal(t, "portami a Bologna", ctx.LastUserText())

	var nilCtx *Context
	assert.Equal(t, "", nilCtx.LastUserText())
	assert.Equal(t, "", (&Context{}).LastUserText())
}

func TestContextHashStability(t *testing.T) {
	a := &Context{ConversationID: "c1", PriorTurns: []Turn{{Role: RoleUser, Text: "ciao"}}}
	b := &Context{ConversationID: "c1", PriorTurns: []Turn{{Role: RoleUser, Text: "ciao"}}}
	assert.Equal(t, a.Hash(), b.Hash())

	c := &Context{ConversationID: "c1", PriorTurns: []Turn{{Role: RoleUser, Text: "ciao!"}}}
	assert.NotEqual(t, a.Hash(), c.Hash())

	var nilCtx *Context
	assert.Equal(t, "0", nilCtx.Hash())
}

func TestOutcomeSummary(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "success with message",
			outcome: Outcome{ToolName: "set_route", Status: OutcomeSuccess, Message: "Percorso verso Genova impostato"},
			want:    "Percorso verso Genova impostato [tool set_route completato]",
		},
		{
			name:    "success without message",
			outcome: Outcome{ToolName: "get_weather", Status: OutcomeSuccess},
			want:    "operazione completata [tool get_weather completato]",
		},
		{
			name:    "canceled",
			outcome: Outcome{ToolName: "set_route", Status: OutcomeCanceled, Reason: "richiesta utente"},
			want:    "Operazione annullata. Ho chiuso il tool \"set_route\".",
		},
		{
			name:    "error with reason",
			outcome: Outcome{ToolName: "set_route", Status: OutcomeError, Reason: "timeout"},
			want:    "Errore nell'esecuzione di set_route: timeout",
		},
		{
			name:    "error without reason",
			outcome: Outcome{ToolName: "set_route", Status: OutcomeError},
			want:    "Errore nell'esecuzione di set_route: errore sconosciuto",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.Summary())
		})
	}
}
