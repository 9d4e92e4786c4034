package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servio-ai/prospector-cli/internal/model"
)

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"Name":               "name",
		" E-mail ":           "e_mail",
		"Última Atividade":   "ultima_atividade",
		"Localização":        "localizacao",
		"last  activity":     "last_activity",
		"Observações (obs.)": "observacoes_obs",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeKey(in), in)
	}
}

func TestParseHeader(t *testing.T) {
	h, err := parseHeader([]string{"Nome", "E-mail", "WhatsApp", "Empresa", "Etapa", "Última atividade", "Ignored", "Telefone"})
	require.NoError(t, err)
	assert.Equal(t, 0, h["name"])
	assert.Equal(t, 1, h["email"])
	// The first phone-like column wins.
	assert.Equal(t, 2, h["phone"])
	assert.Equal(t, 3, h["company"])
	assert.Equal(t, 4, h["stage"])
	assert.Equal(t, 5, h["last_activity"])
	assert.NotContains(t, h, "ignored")

	_, err = parseHeader([]string{"email", "phone"})
	assert.Error(t, err)
}

func TestLeadFromRow(t *testing.T) {
	h, err := parseHeader([]string{"name", "email", "phone", "company", "category", "location", "stage", "source", "last_activity", "tags"})
	require.NoError(t, err)

	lead, err := leadFromRow(h, []string{
		" Maria Silva ", "Maria@Bela.com.br", "(11) 99999-0000", "Salão Bela", "beleza", "São Paulo",
		"Negociação", "Referral", "15/10/2026", "vip; salão",
	}, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "Maria Silva", lead.Name)
	assert.Equal(t, "maria@bela.com.br", lead.Email)
	assert.Equal(t, model.StageNegotiating, lead.Stage)
	assert.Equal(t, model.SourceReferral, lead.Source)
	assert.Equal(t, []string{"vip", "salão"}, lead.Tags)
	require.NotNil(t, lead.LastActivity)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), *lead.LastActivity)
	assert.Equal(t, "email:maria@bela.com.br", lead.ExternalID)
}

func TestLeadFromRow_ShortRowAndDefaults(t *testing.T) {
	h, err := parseHeader([]string{"name", "email", "stage", "source"})
	require.NoError(t, err)

	lead, err := leadFromRow(h, []string{"João"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, model.StageNew, lead.Stage)
	assert.Equal(t, model.SourceOther, lead.Source)
	assert.Nil(t, lead.LastActivity)
	assert.Equal(t, "name:joao|", lead.ExternalID)
}

func TestLeadFromRow_Rejections(t *testing.T) {
	h, err := parseHeader([]string{"name", "stage", "last_activity"})
	require.NoError(t, err)

	_, err = leadFromRow(h, []string{"", "new", ""}, time.UTC)
	assert.ErrorContains(t, err, "missing name")

	_, err = leadFromRow(h, []string{"Ana", "archived", ""}, time.UTC)
	assert.ErrorContains(t, err, "unknown stage")

	_, err = leadFromRow(h, []string{"Ana", "", "yesterday"}, time.UTC)
	assert.ErrorContains(t, err, "unparseable last activity")
}

func TestParseActivityTime_Location(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	got, err := parseActivityTime("2026-10-15 09:00:00", brt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), got)

	got, err = parseActivityTime("2026-10-15T09:00:00Z", brt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), got)
}

func TestParseStageLabel(t *testing.T) {
	tests := []struct {
		in   string
		want model.Stage
		ok   bool
	}{
		{"", model.StageNew, true},
		{"WON", model.StageWon, true},
		{"perdido", model.StageLost, true},
		{"Contatado", model.StageContacted, true},
		{"archived", "", false},
	}
	for _, tt := range tests {
		got, ok := parseStageLabel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestContactKey(t *testing.T) {
	assert.Equal(t, "email:a@b.c", contactKey(model.Lead{Email: "a@b.c", Phone: "1"}))
	assert.Equal(t, "phone:5511999990000", contactKey(model.Lead{Phone: "+55 (11) 99999-0000"}))
	assert.Equal(t, "name:maria_silva|salao_bela", contactKey(model.Lead{Name: "Maria Silva", Company: "Salão Bela"}))
}
