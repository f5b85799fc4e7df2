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

// CreatePost publishes a post under the caller's identity. Author name and
// avatar are snapshotted onto the post at creation time.
func (s *Service) CreatePost(ctx context.Context, userID, text string) (store.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Post{}, validationError("Text is required")
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Post{}, notFoundError("User not found")
	}
	if err != nil {
		return store.Post{}, err
	}

	post := store.Post{
		ID:        util.NewID("post"),
		User:      userID,
		Text:      text,
		Name:      user.Name,
		Avatar:    user.Avatar,
		Likes:     []store.Like{},
		Comments:  []store.Comment{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return store.Post{}, err
	}

	s.search.IndexPost(postRecord(post))
	return post, nil
}

// ListPosts returns all posts, most recent first.
func (s *Service) ListPosts(ctx context.Context) ([]store.Post, error) {
	return s.store.ListPosts(ctx)
}

// ListPostsByOwner returns the caller's posts. An owner with no posts gets
// an empty list, not an error.
func (s *Service) ListPostsByOwner(ctx context.Context, userID string) ([]store.Post, error) {
	return s.store.ListPostsByOwner(ctx, userID)
}

// GetPost fetches a single post by ID.
func (s *Service) GetPost(ctx context.Context, postID string) (store.Post, error) {
	return s.loadPost(ctx, postID)
}

// EditPost replaces the post body. Only the author may edit; likes and
// comments are untouched.
func (s *Service) EditPost(ctx context.Context, postID, userID, text string) (store.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Post{}, validationError("Text is required")
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	if post.User != userID {
		return store.Post{}, forbiddenError()
	}

	post.Text = text
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return store.Post{}, err
	}

	s.search.IndexPost(postRecord(post))
	return post, nil
}

// DeletePost removes a post and everything embedded in it. Only the author
// may delete; a failed authorization check leaves the post untouched.
func (s *Service) DeletePost(ctx context.Context, postID, userID string) error {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.User != userID {
		return forbiddenError()
	}

	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.search.DeletePost(postID)
	return nil
}

// LikePost records the caller's like at the front of the list. A second like
// by the same user is a conflict.
func (s *Service) LikePost(ctx context.Context, postID, userID string) ([]store.Like, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	for _, like := range post.Likes {
		if like.User == userID {
			return nil, conflictError("ALREADY_LIKED", "Post already liked")
		}
	}

	post.Likes = append([]store.Like{{User: userID}}, post.Likes...)
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post.Likes, nil
}

// UnlikePost removes exactly the caller's like. Unliking a post the caller
// never liked is a conflict.
func (s *Service) UnlikePost(ctx context.Context, postID, userID string) ([]store.Like, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, like := range post.Likes {
		if like.User == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, conflictError("NOT_LIKED", "Post has not yet been liked")
	}

	post.Likes = append(post.Likes[:idx], post.Likes[idx+1:]...)
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post.Likes, nil
}

// AddComment appends a comment at the front of the post's comment list. The
// same user may comment any number of times.
func (s *Service) AddComment(ctx context.Context, postID, userID, text string) ([]store.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("Text is required")
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("User not found")
	}
	if err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:        util.NewID("comment"),
		User:      userID,
		Text:      text,
		Name:      user.Name,
		Avatar:    user.Avatar,
		CreatedAt: time.Now().UTC(),
	}
	post.Comments = append([]store.Comment{comment}, post.Comments...)
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post.Comments, nil
}

// EditComment replaces a comment's text. Only the comment's author may edit;
// identity, name and avatar snapshots stay as they were.
func (s *Service) EditComment(ctx context.Context, postID, commentID, userID, text string) ([]store.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("Text is required")
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	idx := findComment(post.Comments, commentID)
	if idx < 0 {
		return nil, notFoundError("Comment not found")
	}
	if post.Comments[idx].User != userID {
		return nil, forbiddenError()
	}

	post.Comments[idx].Text = text
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post.Comments, nil
}

// DeleteComment removes exactly the comment with the given ID. Removal is
// keyed by the comment's ID, never by its author, so users with several
// comments on one post lose only the one they pointed at.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID, userID string) ([]store.Comment, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	idx := findComment(post.Comments, commentID)
	if idx < 0 {
		return nil, notFoundError("Comment not found")
	}
	if post.Comments[idx].User != userID {
		return nil, forbiddenError()
	}

	post.Comments = append(post.Comments[:idx], post.Comments[idx+1:]...)
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post.Comments, nil
}

func (s *Service) loadPost(ctx context.Context, postID string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Post{}, notFoundError("Post not found")
	}
	return post, err
}

func findComment(comments []store.Comment, commentID string) int {
	for i, c := range comments {
		if c.ID == commentID {
			return i
		}
	}
	return -1
}

func postRecord(p store.Post) search.PostRecord {
	return search.PostRecord{ID: p.ID, UserID: p.User, Text: p.Text, Author: p.Name}
}
