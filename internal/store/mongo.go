package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each aggregate root as a single document, matching the
// embedded-document layout the API's data model was designed around.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, mongoURL string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database("devconnect")

	// Unique email lookup backs the register-time duplicate check.
	_, err = db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure email index: %w", err)
	}

	return &MongoStore{client: client, db: db}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) CreateUser(ctx context.Context, user User) error {
	if _, err := s.db.Collection("users").InsertOne(ctx, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.Collection("users").FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.Collection("users").DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertPost(ctx context.Context, post Post) error {
	if _, err := s.db.Collection("posts").InsertOne(ctx, normalizePost(post)); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var post Post
	err := s.db.Collection("posts").FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("find post: %w", err)
	}
	return normalizePost(post), nil
}

func (s *MongoStore) ListPosts(ctx context.Context) ([]Post, error) {
	return s.findPosts(ctx, bson.M{})
}

func (s *MongoStore) ListPostsByOwner(ctx context.Context, userID string) ([]Post, error) {
	return s.findPosts(ctx, bson.M{"user": userID})
}

func (s *MongoStore) findPosts(ctx context.Context, filter bson.M) ([]Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection("posts").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []Post{}
	for cursor.Next(ctx) {
		var post Post
		if err := cursor.Decode(&post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, normalizePost(post))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func (s *MongoStore) UpdatePost(ctx context.Context, post Post) error {
	post = normalizePost(post)
	result, err := s.db.Collection("posts").UpdateOne(ctx, bson.M{"_id": post.ID}, bson.M{
		"$set": bson.M{"text": post.Text, "likes": post.Likes, "comments": post.Comments},
	})
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeletePost(ctx context.Context, postID string) error {
	result, err := s.db.Collection("posts").DeleteOne(ctx, bson.M{"_id": postID})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeletePostsByOwner(ctx context.Context, userID string) error {
	if _, err := s.db.Collection("posts").DeleteMany(ctx, bson.M{"user": userID}); err != nil {
		return fmt.Errorf("delete posts by owner: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertProfile(ctx context.Context, profile Profile) error {
	if _, err := s.db.Collection("profiles").InsertOne(ctx, normalizeProfile(profile)); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, profile Profile) error {
	profile = normalizeProfile(profile)
	result, err := s.db.Collection("profiles").UpdateOne(ctx, bson.M{"_id": profile.ID}, bson.M{
		"$set": bson.M{
			"company":        profile.Company,
			"website":        profile.Website,
			"location":       profile.Location,
			"bio":            profile.Bio,
			"status":         profile.Status,
			"githubusername": profile.GithubUsername,
			"skills":         profile.Skills,
			"social":         profile.Social,
			"experience":     profile.Experience,
			"education":      profile.Education,
		},
	})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetProfileByOwner(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.Collection("profiles").FindOne(ctx, bson.M{"user": userID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("find profile: %w", err)
	}
	return normalizeProfile(profile), nil
}

func (s *MongoStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection("profiles").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	defer cursor.Close(ctx)

	profiles := []Profile{}
	for cursor.Next(ctx) {
		var profile Profile
		if err := cursor.Decode(&profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		profiles = append(profiles, normalizeProfile(profile))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func (s *MongoStore) DeleteProfileByOwner(ctx context.Context, userID string) error {
	if _, err := s.db.Collection("profiles").DeleteOne(ctx, bson.M{"user": userID}); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

type refreshSession struct {
	TokenHash string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	Revoked   bool      `bson:"revoked"`
}

func (s *MongoStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	session := refreshSession{TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt}
	_, err := s.db.Collection("refresh_sessions").ReplaceOne(ctx,
		bson.M{"_id": tokenHash}, session, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *MongoStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var session refreshSession
	err := s.db.Collection("refresh_sessions").FindOne(ctx, bson.M{"_id": tokenHash}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find refresh session: %w", err)
	}
	if session.Revoked || time.Now().After(session.ExpiresAt) {
		return User{}, ErrNotFound
	}
	return s.GetUserByID(ctx, session.UserID)
}

func (s *MongoStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.Collection("refresh_sessions").UpdateOne(ctx, bson.M{"_id": tokenHash},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func normalizePost(post Post) Post {
	post.Likes = nonNilLikes(post.Likes)
	post.Comments = nonNilComments(post.Comments)
	return post
}

func normalizeProfile(profile Profile) Profile {
	profile.Skills = nonNilStrings(profile.Skills)
	profile.Experience = nonNilExperience(profile.Experience)
	profile.Education = nonNilEducation(profile.Education)
	return profile
}
