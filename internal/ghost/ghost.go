// Package ghost learns a developer's coding style from their GitHub history
// and writes new code in that style.
package ghost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxRepos          = 10
	maxCommits        = 20
	patchedCommits    = 3
	patchesPerCommit  = 3
	maxStoredSamples  = 5
	maxStoredMessages = 10
	fetchConcurrency  = 4
)

const profilePrompt = `Analyze this developer's coding and commit style.

Code samples:
%s

Commit messages:
%s

Respond with JSON:
{"naming_convention": "snake_case/camelCase/...", "comment_style": "verbose/minimal/docstring-heavy", "code_organization": "functional/OOP/mixed", "preferred_patterns": [], "tone": "technical/casual/formal", "commit_style": "one sentence"}`

const mimicPrompt = `Generate code for this task, matching the user's exact style.

User's code style:
- Naming: %s
- Comments: %s
- Organization: %s
- Patterns: %s

Examples of their code:
%s

Task: %s
%s
Generate code that looks like they wrote it. Return only the code.`

// Style is the learned style profile.
type Style struct {
	Naming       string   `json:"naming_convention"`
	Comments     string   `json:"comment_style"`
	Organization string   `json:"code_organization"`
	Patterns     []string `json:"preferred_patterns"`
	Tone         string   `json:"tone"`
	CommitStyle  string   `json:"commit_style"`
}

// Profile is what is stored in ghost_profiles for a user.
type Profile struct {
	UserID         string   `json:"user_id"`
	Username       string   `json:"github_username"`
	Style          Style    `json:"style"`
	Samples        []string `json:"samples"`
	CommitMessages []string `json:"commit_messages"`
	Repos          int      `json:"repos"`
	SampleCount    int      `json:"sample_count"`
	CommitCount    int      `json:"commit_count"`
	UpdatedAt      string   `json:"updated_at"`
}

// Ghost indexes and imitates one user.
type Ghost struct {
	store  store.DocumentStore
	llm    llm.Completer
	github *GitHub
	userID string
	logger *zap.Logger
}

// New creates a ghost for userID.
func New(st store.DocumentStore, c llm.Completer, gh *GitHub, userID string, logger *zap.Logger) *Ghost {
	return &Ghost{
		store:  st,
		llm:    c,
		github: gh,
		userID: userID,
		logger: logger.Named("ghost"),
	}
}

// Index reads username's recent repositories and commits, asks the model
// for a style profile and stores it.
func (g *Ghost) Index(ctx context.Context, username string) (*Profile, error) {
	repos, err := g.github.Repos(ctx, username, maxRepos)
	if err != nil {
		return nil, fmt.Errorf("failed to list repos: %w", err)
	}

	var (
		mu       sync.Mutex
		samples  []string
		messages []string
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	for _, repo := range repos {
		eg.Go(func() error {
			commits, err := g.github.Commits(ectx, username, repo.Name, maxCommits)
			if err != nil {
				// Empty repositories answer 409; skip them.
				g.logger.Debug("skipping repo", zap.String("repo", repo.Name), zap.Error(err))
				return nil
			}
			var patches []string
			for i, c := range commits {
				if i == patchedCommits {
					break
				}
				p, err := g.github.Patches(ectx, username, repo.Name, c.SHA, patchesPerCommit)
				if err != nil {
					g.logger.Debug("skipping commit", zap.String("sha", c.SHA), zap.Error(err))
					continue
				}
				patches = append(patches, p...)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, c := range commits {
				messages = append(messages, c.Message)
			}
			samples = append(samples, patches...)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if len(samples) == 0 && len(messages) == 0 {
		return nil, fmt.Errorf("no public activity found for %s", username)
	}

	var style Style
	prompt := fmt.Sprintf(profilePrompt, joinFirst(samples, maxStoredSamples, "\n\n"), joinFirst(messages, maxStoredMessages*2, "\n"))
	if err := llm.ChatJSON(ctx, g.llm, "You analyse developer style.", prompt, &style); err != nil {
		return nil, fmt.Errorf("failed to build style profile: %w", err)
	}

	p := &Profile{
		UserID:         g.userID,
		Username:       username,
		Style:          style,
		Samples:        first(samples, maxStoredSamples),
		CommitMessages: first(messages, maxStoredMessages),
		Repos:          len(repos),
		SampleCount:    len(samples),
		CommitCount:    len(messages),
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := g.save(ctx, p); err != nil {
		return nil, err
	}
	g.logger.Info("profile indexed",
		zap.String("github", username),
		zap.Int("samples", p.SampleCount),
		zap.Int("commits", p.CommitCount))
	return p, nil
}

func (g *Ghost) save(ctx context.Context, p *Profile) error {
	var doc store.Doc
	if err := remarshal(p, &doc); err != nil {
		return err
	}
	if err := g.store.Set(ctx, store.CollectionGhostProfiles, g.userID, doc, false); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// Profile loads the stored profile.
func (g *Ghost) Profile(ctx context.Context) (*Profile, error) {
	d, err := g.store.Get(ctx, store.CollectionGhostProfiles, g.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	var p Profile
	if err := remarshal(d.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Mimic generates code for task in the user's style. extra is optional
// context appended to the prompt.
func (g *Ghost) Mimic(ctx context.Context, task, extra string) (string, error) {
	p, err := g.Profile(ctx)
	if err != nil {
		return "", err
	}

	s := p.Style
	if s.Naming == "" {
		s.Naming = "snake_case"
	}
	if s.Comments == "" {
		s.Comments = "minimal"
	}
	if s.Organization == "" {
		s.Organization = "functional"
	}
	if extra != "" {
		extra = "\nContext: " + extra + "\n"
	}

	prompt := fmt.Sprintf(mimicPrompt,
		s.Naming, s.Comments, s.Organization, strings.Join(s.Patterns, ", "),
		joinFirst(p.Samples, 2, "\n\n"), task, extra)
	reply, err := g.llm.ChatWithSystem(ctx, "You write code in someone else's voice.", prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return llm.StripCodeFence(reply), nil
}

func first(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return append([]string{}, s...)
}

func joinFirst(s []string, n int, sep string) string {
	return strings.Join(first(s, n), sep)
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode profile: %w", err)
	}
	return nil
}
