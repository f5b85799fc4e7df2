package app

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
)

func strptr(s string) *string { return &s }

func TestUpsertProfileParsesSkills(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")

	profile, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{
		Status: strptr("Developer"),
		Skills: strptr("node, react , Go"),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	want := []string{"node", "react", "Go"}
	if !reflect.DeepEqual(profile.Skills, want) {
		t.Fatalf("expected skills %v, got %v", want, profile.Skills)
	}
}

func TestUpsertProfileRequiresStatusAndSkills(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")

	_, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{})
	assertDomainCode(t, err, 422, "VALIDATION_ERROR")
}

func TestUpsertProfileIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")

	input := ProfileInput{
		Status:  strptr("Developer"),
		Skills:  strptr("go, sql"),
		Company: strptr("Acme"),
	}
	first, err := svc.UpsertProfile(context.Background(), user.ID, input)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := svc.UpsertProfile(context.Background(), user.ID, input)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same profile, got new ID %s", second.ID)
	}
	if !reflect.DeepEqual(first.Skills, second.Skills) || first.Company != second.Company {
		t.Fatalf("expected identical state after repeat upsert")
	}

	profiles, _ := fs.ListProfiles(context.Background())
	if len(profiles) != 1 {
		t.Fatalf("expected exactly one profile, got %d", len(profiles))
	}
}

func TestUpsertProfileMergesSparseFields(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")

	_, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{
		Status:  strptr("Developer"),
		Skills:  strptr("go"),
		Company: strptr("Acme"),
		Youtube: strptr("https://youtube.com/@avery"),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Company absent: keep it. Website present but empty: clear it later.
	profile, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{
		Status:   strptr("Senior Developer"),
		Skills:   strptr("go, sql"),
		Location: strptr("Berlin"),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if profile.Company != "Acme" {
		t.Fatalf("expected omitted company to be kept, got %q", profile.Company)
	}
	if profile.Status != "Senior Developer" || profile.Location != "Berlin" {
		t.Fatalf("expected provided fields to overwrite")
	}
	if profile.Social.Youtube != "https://youtube.com/@avery" {
		t.Fatalf("expected social links to survive a sparse update")
	}

	profile, err = svc.UpsertProfile(context.Background(), user.ID, ProfileInput{
		Status:  strptr("Senior Developer"),
		Skills:  strptr("go, sql"),
		Company: strptr(""),
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if profile.Company != "" {
		t.Fatalf("expected present-but-empty company to clear the field, got %q", profile.Company)
	}
}

func TestAddExperienceValidatesRequiredFields(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: strptr("Dev"), Skills: strptr("go")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Engineer"})
	assertDomainCode(t, err, 422, "VALIDATION_ERROR")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError")
	}
	details := domainErr.Details.([]map[string]string)
	msgs := map[string]bool{}
	for _, d := range details {
		msgs[d["msg"]] = true
	}
	if !msgs["Company is required"] || !msgs["From date is required"] {
		t.Fatalf("expected company and from messages, got %v", msgs)
	}
}

func TestExperienceInsertsAtFront(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: strptr("Dev"), Skills: strptr("go")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Junior", Company: "Acme", From: "2019-01-01"}); err != nil {
		t.Fatalf("first experience: %v", err)
	}
	profile, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Senior", Company: "Acme", From: "2022-01-01"})
	if err != nil {
		t.Fatalf("second experience: %v", err)
	}
	if len(profile.Experience) != 2 || profile.Experience[0].Title != "Senior" {
		t.Fatalf("expected newest entry first, got %#v", profile.Experience)
	}
}

func TestRemoveExperienceDeletesOnlyTargetedEntry(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: strptr("Dev"), Skills: strptr("go")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	first, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Keep", Company: "Acme", From: "2019"})
	if err != nil {
		t.Fatalf("experience: %v", err)
	}
	keepID := first.Experience[0].ID
	second, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Drop", Company: "Acme", From: "2022"})
	if err != nil {
		t.Fatalf("experience: %v", err)
	}
	dropID := second.Experience[0].ID

	profile, err := svc.RemoveExperience(context.Background(), user.ID, dropID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(profile.Experience) != 1 || profile.Experience[0].ID != keepID {
		t.Fatalf("expected only %s to remain, got %#v", keepID, profile.Experience)
	}
}

func TestRemoveUnknownEducationEntryIsNotFound(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: strptr("Dev"), Skills: strptr("go")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.AddEducation(context.Background(), user.ID, EducationInput{School: "MIT", Degree: "BSc", From: "2015"}); err != nil {
		t.Fatalf("education: %v", err)
	}

	_, err := svc.RemoveEducation(context.Background(), user.ID, "edu_missing")
	assertDomainCode(t, err, http.StatusNotFound, "NOT_FOUND")

	profile, _ := fs.GetProfileByOwner(context.Background(), user.ID)
	if len(profile.Education) != 1 {
		t.Fatalf("expected education list untouched, got %d entries", len(profile.Education))
	}
}

func TestAddEducationRequiresSchoolDegreeFrom(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: strptr("Dev"), Skills: strptr("go")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_, err := svc.AddEducation(context.Background(), user.ID, EducationInput{})
	assertDomainCode(t, err, 422, "VALIDATION_ERROR")
}

func TestExperienceRequiresExistingProfile(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "user-1", "Avery")

	_, err := svc.AddExperience(context.Background(), user.ID, ExperienceInput{Title: "Engineer", Company: "Acme", From: "2020"})
	assertDomainCode(t, err, http.StatusNotFound, "NOT_FOUND")
}
