package collab

import (
	"errors"
	"testing"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// TestApplyChanges проверяет объединение непересекающихся правок.
func TestApplyChanges(t *testing.T) {
	base := "hello world and goodbye"

	tests := []struct {
		name    string
		changes []model.Change
		want    string
	}{
		{
			"одна замена",
			[]model.Change{editChange(0, 5, "privet")},
			"privet world and goodbye",
		},
		{
			"две непересекающиеся замены в любом порядке",
			[]model.Change{
				editChange(6, 5, "planet"),
				editChange(0, 5, "bye"),
			},
			"bye planet and goodbye",
		},
		{
			"вставка (length=0)",
			[]model.Change{editChange(5, 0, ",")},
			"hello, world and goodbye",
		},
		{
			"удаление (пустой текст)",
			[]model.Change{editChange(11, 12, "")},
			"hello world",
		},
		{
			"rewrite заменяет контент целиком",
			[]model.Change{{Kind: model.ChangeRewrite, NewText: "совсем новый текст"}},
			"совсем новый текст",
		},
		{
			"metadata не затрагивает контент",
			[]model.Change{{Kind: model.ChangeMetadata}},
			base,
		},
		{
			"без изменений",
			nil,
			base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyChanges(base, tt.changes)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("ожидалось %q, получено %q", tt.want, got)
			}
		})
	}
}

// TestApplyChanges_Errors проверяет отказные сценарии merge.
func TestApplyChanges_Errors(t *testing.T) {
	base := "hello world"

	tests := []struct {
		name    string
		changes []model.Change
		wantErr error
	}{
		{
			"пересекающиеся диапазоны",
			[]model.Change{
				editChange(0, 6, "a"),
				editChange(3, 5, "b"),
			},
			ErrMergeOverlap,
		},
		{
			"rewrite совместно с правкой",
			[]model.Change{
				editChange(0, 5, "a"),
				{Kind: model.ChangeRewrite, NewText: "новый"},
			},
			ErrMergeOverlap,
		},
		{
			"диапазон за границами",
			[]model.Change{editChange(100, 5, "x")},
			ErrChangeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyChanges(base, tt.changes)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получена %v", tt.wantErr, err)
			}
		})
	}
}
