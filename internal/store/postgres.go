package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps each aggregate root in one row: likes/comments and
// experience/education live in JSONB columns and are written back whole.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Avatar, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar, created_at
		FROM users WHERE email = $1
	`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar, created_at
		FROM users WHERE id = $1
	`, userID))
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

const postColumns = `id, user_id, body, author_name, author_avatar, likes, comments, created_at`

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	likes, comments, err := marshalPostEmbeds(post)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, post.ID, post.User, post.Text, post.Name, post.Avatar, likes, comments, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID)
	return scanPost(row.Scan)
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListPostsByOwner(ctx context.Context, userID string) ([]Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// UpdatePost writes the whole aggregate back: text plus both sub-collections.
func (s *PostgresStore) UpdatePost(ctx context.Context, post Post) error {
	likes, comments, err := marshalPostEmbeds(post)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET body = $2, likes = $3, comments = $4 WHERE id = $1
	`, post.ID, post.Text, likes, comments)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return requireRow(result, "post")
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireRow(result, "post")
}

func (s *PostgresStore) DeletePostsByOwner(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete posts by owner: %w", err)
	}
	return nil
}

func marshalPostEmbeds(post Post) ([]byte, []byte, error) {
	likes, err := json.Marshal(nonNilLikes(post.Likes))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal likes: %w", err)
	}
	comments, err := json.Marshal(nonNilComments(post.Comments))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal comments: %w", err)
	}
	return likes, comments, nil
}

func scanPost(scan func(...any) error) (Post, error) {
	var post Post
	var likes, comments []byte
	err := scan(&post.ID, &post.User, &post.Text, &post.Name, &post.Avatar, &likes, &comments, &post.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	if err := json.Unmarshal(likes, &post.Likes); err != nil {
		return Post{}, fmt.Errorf("unmarshal likes: %w", err)
	}
	if err := json.Unmarshal(comments, &post.Comments); err != nil {
		return Post{}, fmt.Errorf("unmarshal comments: %w", err)
	}
	post.Likes = nonNilLikes(post.Likes)
	post.Comments = nonNilComments(post.Comments)
	return post, nil
}

const profileColumns = `id, user_id, company, website, location, bio, status, github_username, skills, social, experience, education, created_at`

func (s *PostgresStore) InsertProfile(ctx context.Context, profile Profile) error {
	embeds, err := marshalProfileEmbeds(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, profile.ID, profile.User, profile.Company, profile.Website, profile.Location,
		profile.Bio, profile.Status, profile.GithubUsername,
		embeds.skills, embeds.social, embeds.experience, embeds.education, profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// UpdateProfile replaces every mutable field; merge decisions happen in the
// service layer before the aggregate reaches the store.
func (s *PostgresStore) UpdateProfile(ctx context.Context, profile Profile) error {
	embeds, err := marshalProfileEmbeds(profile)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET company = $2, website = $3, location = $4, bio = $5, status = $6,
			github_username = $7, skills = $8, social = $9, experience = $10, education = $11
		WHERE id = $1
	`, profile.ID, profile.Company, profile.Website, profile.Location, profile.Bio,
		profile.Status, profile.GithubUsername,
		embeds.skills, embeds.social, embeds.experience, embeds.education)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(result, "profile")
}

func (s *PostgresStore) GetProfileByOwner(ctx context.Context, userID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	return scanProfile(row.Scan)
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func (s *PostgresStore) DeleteProfileByOwner(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

type profileEmbeds struct {
	skills     []byte
	social     []byte
	experience []byte
	education  []byte
}

func marshalProfileEmbeds(profile Profile) (profileEmbeds, error) {
	var embeds profileEmbeds
	var err error
	if embeds.skills, err = json.Marshal(nonNilStrings(profile.Skills)); err != nil {
		return embeds, fmt.Errorf("marshal skills: %w", err)
	}
	if embeds.social, err = json.Marshal(profile.Social); err != nil {
		return embeds, fmt.Errorf("marshal social: %w", err)
	}
	if embeds.experience, err = json.Marshal(nonNilExperience(profile.Experience)); err != nil {
		return embeds, fmt.Errorf("marshal experience: %w", err)
	}
	if embeds.education, err = json.Marshal(nonNilEducation(profile.Education)); err != nil {
		return embeds, fmt.Errorf("marshal education: %w", err)
	}
	return embeds, nil
}

func scanProfile(scan func(...any) error) (Profile, error) {
	var profile Profile
	var skills, social, experience, education []byte
	err := scan(&profile.ID, &profile.User, &profile.Company, &profile.Website,
		&profile.Location, &profile.Bio, &profile.Status, &profile.GithubUsername,
		&skills, &social, &experience, &education, &profile.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	if err := json.Unmarshal(skills, &profile.Skills); err != nil {
		return Profile{}, fmt.Errorf("unmarshal skills: %w", err)
	}
	if err := json.Unmarshal(social, &profile.Social); err != nil {
		return Profile{}, fmt.Errorf("unmarshal social: %w", err)
	}
	if err := json.Unmarshal(experience, &profile.Experience); err != nil {
		return Profile{}, fmt.Errorf("unmarshal experience: %w", err)
	}
	if err := json.Unmarshal(education, &profile.Education); err != nil {
		return Profile{}, fmt.Errorf("unmarshal education: %w", err)
	}
	profile.Skills = nonNilStrings(profile.Skills)
	profile.Experience = nonNilExperience(profile.Experience)
	profile.Education = nonNilEducation(profile.Education)
	return profile, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.password_hash, u.avatar, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", entity, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilLikes(likes []Like) []Like {
	if likes == nil {
		return []Like{}
	}
	return likes
}

func nonNilComments(comments []Comment) []Comment {
	if comments == nil {
		return []Comment{}
	}
	return comments
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilExperience(entries []Experience) []Experience {
	if entries == nil {
		return []Experience{}
	}
	return entries
}

func nonNilEducation(entries []Education) []Education {
	if entries == nil {
		return []Education{}
	}
	return entries
}
