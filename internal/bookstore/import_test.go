package bookstore_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/bookparser/internal/bookstore"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/internal/reader"
	anmock "github.com/MrWong99/bookparser/pkg/provider/analyzer/mock"
	"github.com/MrWong99/bookparser/pkg/types"
)

func newProcessor(t *testing.T, an *anmock.Provider) *reader.Processor {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	p, err := reader.New(an, enrich.New(nil, enrich.WithMetrics(m)), reader.WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestImport(t *testing.T) {
	t.Parallel()

	an := &anmock.Provider{
		Units: []types.RawUnit{
			{Surface: "猫", Reading: "ネコ", Category: types.CategoryNoun, BaseForm: "猫"},
			{Surface: "。", Reading: "。", Category: types.CategoryPunctuation, BaseForm: "。"},
		},
		BySentence: map[string][]types.RawUnit{"犬。": nil},
	}
	s, _ := newFileStore(t)
	ctx := context.Background()

	res, err := bookstore.Import(ctx, s, newProcessor(t, an), bookstore.ImportRequest{
		Filename: "My Book.txt",
		Text:     "猫。犬。\n猫。",
		Mode:     enrich.ModeLocal,
		Merge:    merge.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Index != 1 || !errors.Is(res.Skipped[0].Err, reader.ErrNoTokens) {
		t.Errorf("Skipped = %+v", res.Skipped)
	}

	book, err := s.Get(ctx, "my-book")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if book.Metadata.BookName != "My Book" || book.Metadata.TotalLines != 3 || book.Metadata.ProcessedLines != 2 {
		t.Errorf("metadata = %+v", book.Metadata)
	}
	if got := book.Pending(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Pending() = %v, want [1]", got)
	}
	if r := book.Content.ProcessedData[2]; r == nil || r.Status != reader.StatusLocal {
		t.Errorf("sentence 2 = %+v", r)
	}
}

func TestImport_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  bookstore.ImportRequest
	}{
		{name: "no sentences", req: bookstore.ImportRequest{ID: "empty", Text: " \n\n "}},
		{name: "bad id", req: bookstore.ImportRequest{ID: "../escape", Text: "猫。"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			an := &anmock.Provider{}
			s, _ := newFileStore(t)
			_, err := bookstore.Import(context.Background(), s, newProcessor(t, an), tc.req)
			if !errors.Is(err, bookstore.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
			if an.CallCount() != 0 {
				t.Error("sentences were analysed for a rejected import")
			}
		})
	}
}
