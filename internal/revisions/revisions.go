package revisions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"corpora/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	headingFile = "heading.txt"
	bodyFile    = "body.html"
	branch      = "main"
)

// Content is the canonical text of an article as it is committed.
type Content struct {
	Heading string
	Body    string
}

// Service keeps one git repository per article under baseDir. Writes to the
// same article are serialised.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records content as the newest revision of the article, creating the
// repository on first use. Committing unchanged content returns the current
// head instead of an empty commit.
func (s *Service) Commit(articleID string, content Content, author, message string) (store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(articleID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, headingFile), []byte(content.Heading), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", headingFile, err)
	}
	if err := os.WriteFile(filepath.Join(root, bodyFile), []byte(content.Body), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", bodyFile, err)
	}
	for _, name := range []string{headingFile, bodyFile} {
		if _, err := worktree.Add(name); err != nil {
			return store.CommitInfo{}, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@corpora.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return store.CommitInfo{}, fmt.Errorf("resolve head: %w", headErr)
		}
		hash, err = head.Hash(), nil
	}
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists revisions newest first. An article that was never committed
// has an empty history.
func (s *Service) History(articleID string, limit int) ([]store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Content reads the article text stored at a revision. hash may be abbreviated.
func (s *Service) Content(articleID, hash string) (Content, store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("resolve revision %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	heading, err := readFile(commitObj, headingFile)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	body, err := readFile(commitObj, bodyFile)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	return Content{Heading: heading, Body: body}, toCommitInfo(commitObj), nil
}

// Remove deletes the article's repository, if any.
func (s *Service) Remove(articleID string) error {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(articleID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(articleID string) (*git.Repository, error) {
	path := s.repoPath(articleID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

func (s *Service) repoPath(articleID string) string {
	return filepath.Join(s.baseDir, articleID)
}

func (s *Service) articleLock(articleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[articleID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[articleID] = lock
	return lock
}

func readFile(commitObj *object.Commit, name string) (string, error) {
	file, err := commitObj.File(name)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", name, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return contents, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "annotator"
	}
	return string(out)
}
