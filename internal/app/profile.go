package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"devconnect/internal/search"
	"devconnect/internal/store"
	"devconnect/internal/util"
)

// ProfileInput is the sparse create-or-update payload. Nil pointers mean
// "leave the stored value alone"; present values overwrite, including
// present-but-empty strings which clear the field.
type ProfileInput struct {
	Company        *string `json:"company"`
	Website        *string `json:"website"`
	Location       *string `json:"location"`
	Bio            *string `json:"bio"`
	Status         *string `json:"status"`
	GithubUsername *string `json:"githubusername"`
	Skills         *string `json:"skills"`
	Youtube        *string `json:"youtube"`
	Facebook       *string `json:"facebook"`
	Twitter        *string `json:"twitter"`
	Instagram      *string `json:"instagram"`
	LinkedIn       *string `json:"linkedIn"`
}

// ExperienceInput is the payload for adding a work history entry.
type ExperienceInput struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	From        string `json:"from"`
	To          string `json:"to"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

// EducationInput is the payload for adding an education entry.
type EducationInput struct {
	School       string `json:"school"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"fieldofstudy"`
	From         string `json:"from"`
	To           string `json:"to"`
	Current      bool   `json:"current"`
	Description  string `json:"description"`
}

// UpsertProfile creates the caller's profile or merges the input into the
// existing one. A user has at most one profile; repeating the same input is
// idempotent.
func (s *Service) UpsertProfile(ctx context.Context, userID string, input ProfileInput) (store.Profile, error) {
	var msgs []string
	if input.Status == nil || strings.TrimSpace(*input.Status) == "" {
		msgs = append(msgs, "Status is required")
	}
	if input.Skills == nil || strings.TrimSpace(*input.Skills) == "" {
		msgs = append(msgs, "Skills is required")
	}
	if len(msgs) > 0 {
		return store.Profile{}, validationError(msgs...)
	}

	profile, err := s.store.GetProfileByOwner(ctx, userID)
	switch {
	case err == nil:
		applyProfileInput(&profile, input)
		if err := s.store.UpdateProfile(ctx, profile); err != nil {
			return store.Profile{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		profile = store.Profile{
			ID:         util.NewID("profile"),
			User:       userID,
			Skills:     []string{},
			Experience: []store.Experience{},
			Education:  []store.Education{},
			CreatedAt:  time.Now().UTC(),
		}
		applyProfileInput(&profile, input)
		if err := s.store.InsertProfile(ctx, profile); err != nil {
			return store.Profile{}, err
		}
	default:
		return store.Profile{}, err
	}

	s.search.IndexProfile(profileRecord(profile))
	return profile, nil
}

// MyProfile returns the caller's own profile.
func (s *Service) MyProfile(ctx context.Context, userID string) (map[string]any, error) {
	profile, err := s.store.GetProfileByOwner(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("There is no profile for this user")
	}
	if err != nil {
		return nil, err
	}
	return s.profilePayload(ctx, profile), nil
}

// ProfileByUser returns the profile of any user. This is the one public
// profile read.
func (s *Service) ProfileByUser(ctx context.Context, userID string) (map[string]any, error) {
	return s.MyProfile(ctx, userID)
}

// ListProfiles returns every profile with its owner summary attached.
func (s *Service) ListProfiles(ctx context.Context) ([]map[string]any, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		payloads = append(payloads, s.profilePayload(ctx, p))
	}
	return payloads, nil
}

// AddExperience inserts a work history entry at the front of the list.
func (s *Service) AddExperience(ctx context.Context, userID string, input ExperienceInput) (store.Profile, error) {
	var msgs []string
	if strings.TrimSpace(input.Title) == "" {
		msgs = append(msgs, "Title is required")
	}
	if strings.TrimSpace(input.Company) == "" {
		msgs = append(msgs, "Company is required")
	}
	if strings.TrimSpace(input.From) == "" {
		msgs = append(msgs, "From date is required")
	}
	if len(msgs) > 0 {
		return store.Profile{}, validationError(msgs...)
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return store.Profile{}, err
	}

	entry := store.Experience{
		ID:          util.NewID("exp"),
		Title:       input.Title,
		Company:     input.Company,
		Location:    input.Location,
		From:        input.From,
		To:          input.To,
		Current:     input.Current,
		Description: input.Description,
	}
	profile.Experience = append([]store.Experience{entry}, profile.Experience...)
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return store.Profile{}, err
	}
	return profile, nil
}

// RemoveExperience deletes the entry with the given ID. Unknown IDs are
// reported, never silently dropped.
func (s *Service) RemoveExperience(ctx context.Context, userID, entryID string) (store.Profile, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return store.Profile{}, err
	}

	idx := -1
	for i, e := range profile.Experience {
		if e.ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Profile{}, notFoundError("Experience entry not found")
	}

	profile.Experience = append(profile.Experience[:idx], profile.Experience[idx+1:]...)
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return store.Profile{}, err
	}
	return profile, nil
}

// AddEducation inserts an education entry at the front of the list.
func (s *Service) AddEducation(ctx context.Context, userID string, input EducationInput) (store.Profile, error) {
	var msgs []string
	if strings.TrimSpace(input.School) == "" {
		msgs = append(msgs, "School is required")
	}
	if strings.TrimSpace(input.Degree) == "" {
		msgs = append(msgs, "Degree is required")
	}
	if strings.TrimSpace(input.From) == "" {
		msgs = append(msgs, "From date is required")
	}
	if len(msgs) > 0 {
		return store.Profile{}, validationError(msgs...)
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return store.Profile{}, err
	}

	entry := store.Education{
		ID:           util.NewID("edu"),
		School:       input.School,
		Degree:       input.Degree,
		FieldOfStudy: input.FieldOfStudy,
		From:         input.From,
		To:           input.To,
		Current:      input.Current,
		Description:  input.Description,
	}
	profile.Education = append([]store.Education{entry}, profile.Education...)
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return store.Profile{}, err
	}
	return profile, nil
}

// RemoveEducation deletes the entry with the given ID.
func (s *Service) RemoveEducation(ctx context.Context, userID, entryID string) (store.Profile, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return store.Profile{}, err
	}

	idx := -1
	for i, e := range profile.Education {
		if e.ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Profile{}, notFoundError("Education entry not found")
	}

	profile.Education = append(profile.Education[:idx], profile.Education[idx+1:]...)
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return store.Profile{}, err
	}
	return profile, nil
}

// DeleteAccount removes the caller's profile, all their posts and finally
// the user record itself. Outstanding tokens die with the user lookup.
// Everything the user had in the search index goes with them.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if profile, err := s.store.GetProfileByOwner(ctx, userID); err == nil {
		s.search.DeleteProfile(profile.ID)
	}
	posts, err := s.store.ListPostsByOwner(ctx, userID)
	if err != nil {
		return err
	}
	for _, post := range posts {
		s.search.DeletePost(post.ID)
	}

	if err := s.store.DeleteProfileByOwner(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := s.store.DeletePostsByOwner(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

func (s *Service) loadProfile(ctx context.Context, userID string) (store.Profile, error) {
	profile, err := s.store.GetProfileByOwner(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, notFoundError("There is no profile for this user")
	}
	return profile, err
}

func (s *Service) profilePayload(ctx context.Context, profile store.Profile) map[string]any {
	payload := map[string]any{"profile": profile}
	if user, err := s.store.GetUserByID(ctx, profile.User); err == nil {
		payload["user"] = map[string]any{
			"id":     user.ID,
			"name":   user.Name,
			"avatar": user.Avatar,
		}
	}
	return payload
}

func applyProfileInput(profile *store.Profile, input ProfileInput) {
	if input.Company != nil {
		profile.Company = *input.Company
	}
	if input.Website != nil {
		profile.Website = *input.Website
	}
	if input.Location != nil {
		profile.Location = *input.Location
	}
	if input.Bio != nil {
		profile.Bio = *input.Bio
	}
	if input.Status != nil {
		profile.Status = *input.Status
	}
	if input.GithubUsername != nil {
		profile.GithubUsername = *input.GithubUsername
	}
	if input.Skills != nil {
		profile.Skills = parseSkills(*input.Skills)
	}
	if input.Youtube != nil {
		profile.Social.Youtube = *input.Youtube
	}
	if input.Facebook != nil {
		profile.Social.Facebook = *input.Facebook
	}
	if input.Twitter != nil {
		profile.Social.Twitter = *input.Twitter
	}
	if input.Instagram != nil {
		profile.Social.Instagram = *input.Instagram
	}
	if input.LinkedIn != nil {
		profile.Social.LinkedIn = *input.LinkedIn
	}
}

// parseSkills splits a comma separated string into trimmed entries, keeping
// the original order.
func parseSkills(raw string) []string {
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			skills = append(skills, trimmed)
		}
	}
	return skills
}

func profileRecord(p store.Profile) search.ProfileRecord {
	return search.ProfileRecord{
		ID:       p.ID,
		UserID:   p.User,
		Status:   p.Status,
		Company:  p.Company,
		Location: p.Location,
		Bio:      p.Bio,
		Skills:   p.Skills,
	}
}
