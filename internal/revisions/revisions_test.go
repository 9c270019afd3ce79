package revisions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestArticleHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	history, err := svc.History("ar_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history before the first commit, got %v", history)
	}

	first, err := svc.Commit("ar_1", Content{Heading: "The sun smiled", Body: "<div>Prices soared.</div>"}, "Avery Quinn", "Create article")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if first.Hash == "" || first.Author != "Avery Quinn" {
		t.Fatalf("unexpected commit %+v", first)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "ar_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, err := svc.Commit("ar_1", Content{Heading: "The sun smiled", Body: "<div>Prices fell.</div>"}, "Avery Quinn", "Update body")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new revision")
	}

	history, err = svc.History("ar_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("unexpected history %+v", history)
	}

	content, info, err := svc.Content("ar_1", first.Hash)
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if content.Body != "<div>Prices soared.</div>" || info.Hash != first.Hash {
		t.Fatalf("unexpected content %+v at %+v", content, info)
	}

	limited, err := svc.History("ar_1", 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d entries", len(limited))
	}
}

func TestCommitUnchangedContentReturnsHead(t *testing.T) {
	svc := New(t.TempDir())
	content := Content{Heading: "Heading", Body: "<div>Body</div>"}

	first, err := svc.Commit("ar_1", content, "Avery", "Create article")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	again, err := svc.Commit("ar_1", content, "Avery", "Update heading")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected unchanged content to keep head %s, got %s", first.Hash, again.Hash)
	}
}

func TestRemoveDeletesHistory(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	if _, err := svc.Commit("ar_1", Content{Heading: "h", Body: "b"}, "Avery", "Create article"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := svc.Remove("ar_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "ar_1")); !os.IsNotExist(err) {
		t.Fatalf("expected repo directory to be gone, got %v", err)
	}
	history, err := svc.History("ar_1", 10)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history after remove, got %v (%v)", history, err)
	}
	if err := svc.Remove("ar_missing"); err != nil {
		t.Fatalf("removing a missing history should succeed: %v", err)
	}
}

func TestConcurrentCommitsOnSameArticle(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Commit("ar_1", Content{Heading: "h", Body: "b0"}, "Avery", "Create article"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := "b" + string(rune('0'+i))
			if _, err := svc.Commit("ar_1", Content{Heading: "h", Body: body}, "Avery", "Update body"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Commit() error = %v", err)
	}

	history, err := svc.History("ar_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 revisions, got %d", len(history))
	}
}
