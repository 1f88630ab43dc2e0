// Version control collaborator for tracked domains. The engine calls this
// after snapshotting/restoring a tracked domain and treats every failure here
// as a warning - version control must never fail the operation that invoked it.
package gitversioning

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
)

type Repository struct {
	dir  string
	logl *logex.Leveled
}

func NewRepository(dir string, logger *log.Logger) *Repository {
	return &Repository{
		dir:  dir,
		logl: logex.Levels(logex.NonNil(logger)),
	}
}

type Status struct {
	Initialized bool   `json:"initialized"`
	Clean       bool   `json:"clean"`
	Branch      string `json:"branch,omitempty"`
	LastCommit  string `json:"last_commit,omitempty"`
}

func (r *Repository) IsInitialized() bool {
	exists, err := fileexists.Exists(filepath.Join(r.dir, ".git"))

	return err == nil && exists
}

// Init sets up the repository with a local identity (commits must work on
// hosts with no global git config) and an initial commit. Idempotent.
func (r *Repository) Init() error {
	if r.IsInitialized() {
		return nil
	}

	if err := r.git("init"); err != nil {
		return err
	}

	if _, err := r.gitOutput("config", "user.name"); err != nil {
		if err := r.git("config", "user.name", "frostlock"); err != nil {
			return err
		}
	}

	if _, err := r.gitOutput("config", "user.email"); err != nil {
		if err := r.git("config", "user.email", "frostlock@localhost"); err != nil {
			return err
		}
	}

	gitignorePath := filepath.Join(r.dir, ".gitignore")

	gitignoreExists, err := fileexists.Exists(gitignorePath)
	if err != nil {
		return err
	}

	if !gitignoreExists {
		if err := os.WriteFile(gitignorePath, []byte("*.tmp\n*.log\n"), 0644); err != nil {
			return err
		}
	}

	if err := r.git("add", "-A"); err != nil {
		return err
	}

	return r.git("commit", "-m", "frostlock: initial commit")
}

// Commit stages everything and commits. A clean tree is (false, nil) - nothing
// to commit is not an error.
func (r *Repository) Commit(message string) (bool, error) {
	if !r.IsInitialized() {
		return false, errors.New("not a version controlled directory")
	}

	if err := r.git("add", "-A"); err != nil {
		return false, err
	}

	porcelain, err := r.gitOutput("status", "--porcelain")
	if err != nil {
		return false, err
	}

	if strings.TrimSpace(porcelain) == "" {
		return false, nil
	}

	if err := r.git("commit", "-m", message); err != nil {
		return false, err
	}

	r.logl.Info.Printf("committed %s: %s", r.dir, message)

	return true, nil
}

func (r *Repository) GetStatus() (*Status, error) {
	if !r.IsInitialized() {
		return &Status{Initialized: false}, nil
	}

	porcelain, err := r.gitOutput("status", "--porcelain")
	if err != nil {
		return nil, err
	}

	status := &Status{
		Initialized: true,
		Clean:       strings.TrimSpace(porcelain) == "",
	}

	// branch/last-commit are cosmetic - a repo with no commits yet is fine
	if branch, err := r.gitOutput("rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		status.Branch = strings.TrimSpace(branch)
	}

	if lastCommit, err := r.gitOutput("log", "-1", "--format=%h %s"); err == nil {
		status.LastCommit = strings.TrimSpace(lastCommit)
	}

	return status, nil
}

func (r *Repository) git(args ...string) error {
	_, err := r.gitOutput(args...)

	return err
}

func (r *Repository) gitOutput(args ...string) (string, error) {
	//nolint:gosec // args are our own, dir is the domain path
	output, err := exec.Command("git", append([]string{"-C", r.dir}, args...)...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %v, output: %s", args[0], err, output)
	}

	return string(output), nil
}
