package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionListScan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    QuestionList
		wantErr bool
	}{
		{name: "array bytes", src: []byte(`["a","b"]`), want: QuestionList{"a", "b"}},
		{name: "array string", src: `["a"]`, want: QuestionList{"a"}},
		{name: "double encoded", src: []byte(`"[\"a\",\"b\"]"`), want: QuestionList{"a", "b"}},
		{name: "nil", src: nil, want: nil},
		{name: "not json", src: []byte(`nope`), wantErr: true},
		{name: "wrong type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got QuestionList
			err := got.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuestionListValueNil(t *testing.T) {
	v, err := QuestionList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}

func TestQuestionnaireBrand(t *testing.T) {
	q := Questionnaire{BrandName: "Acme", Aliases: []string{"ACME Corp"}, Competitors: []string{"Globex"}}
	b := q.Brand()
	assert.Equal(t, "Acme", b.Name)
	assert.Equal(t, []string{"ACME Corp"}, b.Aliases)
	assert.Equal(t, []string{"Globex"}, b.Competitors)
}
