package search

import (
	"context"
	"testing"
	"time"

	"corpora/api/internal/store"
)

func TestPlainText(t *testing.T) {
	got := PlainText(`<div>Prices <b>soared</b><br>overnight.</div><p>Zeit&nbsp;ist Geld</p>`)
	want := "Prices soared overnight. Zeit ist Geld"
	if got != want {
		t.Fatalf("PlainText() = %q, want %q", got, want)
	}
}

func TestParseResultType(t *testing.T) {
	for in, want := range map[string]ResultType{"": "", "Article": ResultArticle, " case ": ResultCase} {
		got, ok := ParseResultType(in)
		if !ok || got != want {
			t.Fatalf("ParseResultType(%q) = %q %v", in, got, ok)
		}
	}
	if _, ok := ParseResultType("thread"); ok {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestRecordsFromStore(t *testing.T) {
	article := store.Article{
		ID:              "ar_1",
		EditionID:       "ed_1",
		Heading:         "The sun smiled",
		Body:            "<div>Prices soared.</div>",
		PublicationDate: time.Date(2020, 3, 14, 0, 0, 0, 0, time.UTC),
		FullyAnnotated:  true,
	}
	record := ArticleFromStore(article, "en")
	if record.Body != "Prices soared." || record.PublicationDate != "2020-03-14" || record.Lang != "en" || !record.FullyAnnotated {
		t.Fatalf("unexpected article record: %+v", record)
	}

	item := CaseFromStore(store.MetaphorCase{ID: "mc_1", ArticleID: "ar_1", Text: "sun smiled", ModelName: "Personification", EditionID: "ed_1", Lang: "en"})
	if item.ModelName != "Personification" || item.ArticleID != "ar_1" {
		t.Fatalf("unexpected case record: %+v", item)
	}
}

func TestServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil)
	resp := svc.Search(context.Background(), Query{Text: "sun"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Query != "sun" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	svc.IndexArticle(store.Article{ID: "ar_1"}, "en")
	svc.IndexCase(store.MetaphorCase{ID: "mc_1"})
	svc.Remove([]string{"ar_1"}, []string{"mc_1"})
	if n, err := svc.ReindexAllFromPG(context.Background()); n != 0 || err != nil {
		t.Fatalf("ReindexAllFromPG() = %d, %v", n, err)
	}
}

func TestPgFTSBlankQuery(t *testing.T) {
	results, total, err := NewPgFTS(nil).Search(context.Background(), Query{Text: "   "})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected blank query to short-circuit, got %v %d %v", results, total, err)
	}
}
