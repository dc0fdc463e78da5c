package posts

import "github.com/goliatone/go-query-cache/cache"

// Keys builds every query key of the posts resource. All keys share the
// "posts" root, so invalidating All reaches lists, details and comments.
var Keys keyFactory

type keyFactory struct{}

// All is the root of every posts key.
func (keyFactory) All() cache.QueryKey { return cache.BuildKey("posts") }

// Lists is the root of every paginated post list.
func (k keyFactory) Lists() cache.QueryKey { return k.All().Extend("list") }

// List is the paginated post list for a page size.
func (k keyFactory) List(limit int) cache.QueryKey {
	return k.Lists().Extend(map[string]any{"limit": limit})
}

// Details is the root of every single-post read.
func (k keyFactory) Details() cache.QueryKey { return k.All().Extend("detail") }

// Detail is the single-post read for id.
func (k keyFactory) Detail(id int) cache.QueryKey { return k.Details().Extend(id) }

// Comments is the root of every comment list of postID.
func (k keyFactory) Comments(postID int) cache.QueryKey {
	return k.All().Extend("comments", postID)
}

// CommentList is the paginated comment list of postID for a page size.
func (k keyFactory) CommentList(postID, limit int) cache.QueryKey {
	return k.Comments(postID).Extend(map[string]any{"limit": limit})
}
