package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"promoter/internal/domain"
	"promoter/internal/generator"
	"promoter/internal/platform"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

type GenerateRequest struct {
	ContentID int64
	UserID    int64
	// Platforms are identifiers such as "linkedin". Empty means LinkedIn only.
	Platforms []string
	AutoPost  bool
	Options   generator.Options
	// TaskID keys the shares written by auto-posting.
	TaskID string
}

type PlatformReport struct {
	State      State
	Source     Source
	Text       string
	Generation generator.Result
	Posting    *platform.PostingResult
	Share      *domain.Share
	// PostRetryTaskID is the follow-up posting task scheduled after a
	// transient auto-post failure.
	PostRetryTaskID string
}

type GenerateReport struct {
	ContentID          int64
	UserID             int64
	Status             Status
	Platforms          map[string]PlatformReport
	Warnings           []string
	UserAuthorizations map[string]bool
}

// Generate produces copy for every requested platform and optionally posts
// it. Platforms are independent: one failing never stops the others. The
// report is SUCCESS when any platform produced copy.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (GenerateReport, error) {
	content, err := o.store.GetContent(ctx, req.ContentID)
	if err != nil {
		return GenerateReport{}, fmt.Errorf("load content: %w", err)
	}

	user, err := o.store.GetUser(ctx, req.UserID)
	if err != nil {
		return GenerateReport{}, fmt.Errorf("load user: %w", err)
	}

	names := req.Platforms
	if len(names) == 0 {
		names = []string{platform.LinkedIn.String()}
	}

	if !content.HasCopy() {
		content = o.enrich(ctx, content)
	}

	report := GenerateReport{
		ContentID:          content.ID,
		UserID:             user.ID,
		Status:             StatusFailure,
		Platforms:          make(map[string]PlatformReport, len(names)),
		UserAuthorizations: make(map[string]bool, len(names)),
	}

	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))

		pr, genErr := o.generateFor(ctx, &report, content, user, key, req)
		if genErr != nil {
			return report, genErr
		}

		report.Platforms[key] = pr

		if pr.Generation.Success {
			report.Status = StatusSuccess
		}
	}

	o.log.InfoContext(ctx, "Content generation is finished",
		"contentID", content.ID,
		"userID", user.ID,
		"platforms", names,
		"status", report.Status,
		"warnings", len(report.Warnings))

	return report, nil
}

func (o *Orchestrator) generateFor(
	ctx context.Context,
	report *GenerateReport,
	content domain.Content,
	user domain.User,
	key string,
	req GenerateRequest,
) (PlatformReport, error) {
	p, err := platform.Parse(key)
	if err != nil {
		return PlatformReport{
			State:      StateGenerationFailed,
			Source:     SourceErr,
			Generation: generator.Result{Error: err.Error()},
		}, nil
	}

	manager, managerErr := o.registry.Manager(p)
	authorized := managerErr == nil && manager.CheckAuthorization(user)
	report.UserAuthorizations[key] = authorized

	cfg, ok := platform.ConfigFor(p)
	if !ok {
		o.log.WarnContext(ctx, "Platform has no generation config",
			"platform", p.String(),
			"contentID", content.ID)

		return PlatformReport{
			State:      StateGenerationFailed,
			Source:     SourceErr,
			Generation: generator.Result{Error: fmt.Sprintf("%v: %s", platform.ErrUnsupportedPlatform, p)},
		}, nil
	}

	pr := PlatformReport{State: StateGenerating}

	if content.HasCopy() {
		text := strings.TrimSpace(content.Copy)
		pr.Source = SourceUser
		pr.Generation = generator.Result{
			Text:     text,
			Success:  true,
			Attempts: 1,
			Length:   utf8.RuneCountInString(text),
		}

		if !cfg.Fits(text) {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"%s: Provided copy may exceed character limit (%d characters). Please review and edit if necessary.",
				p.DisplayName(), platform.EffectiveLength(text)))
		}
	} else {
		pr.Source = SourceAI
		pr.Generation = o.generator.Generate(ctx, content, user, p, req.Options)

		if !pr.Generation.Success && authorized {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"%s: Content generation failed - %s", p.DisplayName(), pr.Generation.Error))
		}
	}

	if !pr.Generation.Success {
		pr.State = StateGenerationFailed

		return pr, nil
	}

	pr.State = StateGenerated
	pr.Text = pr.Generation.Text

	if !req.AutoPost {
		return pr, nil
	}

	switch {
	case managerErr != nil:
		message := fmt.Sprintf("Posting to %s is not supported yet", p.DisplayName())
		pr.Posting = &platform.PostingResult{ErrorMessage: message}
		report.Warnings = append(report.Warnings, message)

		return pr, nil
	case !authorized:
		pr.Posting = &platform.PostingResult{
			ErrorMessage: fmt.Sprintf("User not authorized for %s", p.DisplayName()),
		}

		return pr, nil
	}

	pr.State = StatePosting

	share, result, err := o.publish(ctx, user, content.ID, p, manager, pr.Text, shareKey(req.TaskID, p))
	pr.Posting = &result

	switch {
	case result.Success && err == nil:
		pr.State = StatePosted
		pr.Share = &share
	case result.Success:
		// Posted but not recorded. The task is retried and finds no share, so
		// the post may be repeated.
		return pr, err
	default:
		pr.State = StatePostFailed

		o.log.WarnContext(ctx, "Auto-post failed",
			"error", err,
			"platform", p.String(),
			"contentID", content.ID,
			"userID", user.ID)
	}

	return pr, nil
}

func shareKey(taskID string, p platform.Platform) string {
	if taskID == "" {
		return ""
	}

	return taskID + ":" + p.String()
}
