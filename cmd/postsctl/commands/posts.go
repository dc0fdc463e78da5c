package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/posts"
)

func (c *CLI) newListCmd() *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, page by page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := c.container.Posts()
			listing, err := loadPages(c, cmd, posts.Keys.List(svc.PageSize()), pages, svc.List, svc.ListNext, svc.PeekList)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range listing.Items {
				fmt.Fprintf(out, "%4d  %s\n", p.ID, p.Title)
			}
			printFooter(out, len(listing.Items), listing.HasMore)
			return nil
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "Number of pages to load")
	return cmd
}

func (c *CLI) newCommentsCmd() *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "comments <post-id>",
		Short: "List the comments of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID(args[0])
			if err != nil {
				return err
			}

			svc := c.container.Posts()
			listing, err := loadPages(c, cmd, posts.Keys.CommentList(postID, svc.PageSize()), pages,
				func(ctx context.Context) (posts.Listing[posts.Comment], error) { return svc.Comments(ctx, postID) },
				func(ctx context.Context) (posts.Listing[posts.Comment], error) { return svc.CommentsNext(ctx, postID) },
				func() posts.Listing[posts.Comment] { return svc.PeekComments(postID) },
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, cm := range listing.Items {
				fmt.Fprintf(out, "%4d  %s <%s>\n", cm.ID, cm.Name, cm.Email)
			}
			printFooter(out, len(listing.Items), listing.HasMore)
			return nil
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "Number of pages to load")
	return cmd
}

func (c *CLI) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			svc := c.container.Posts()
			post, err := svc.Get(cmd.Context(), id)
			if err != nil {
				if err := c.retryFailure(cmd, presentable(err, nil)); err != nil {
					return err
				}
				// The successful retry left the post in the detail store.
				if post, err = svc.Get(cmd.Context(), id); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\nby user %d\n\n%s\n", post.ID, post.Title, post.UserID, post.Body)
			return nil
		},
	}
}

func (c *CLI) newCreateCmd() *cobra.Command {
	var in posts.PostInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			post, err := c.container.Posts().Create(cmd.Context(), in)
			if err != nil {
				if err := c.retryFailure(cmd, presentable(err, nil)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created post %q\n", in.Title)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created post %d %q\n", post.ID, post.Title)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&in.UserID, "user", "u", 1, "Author user id")
	flags.StringVarP(&in.Title, "title", "t", "", "Post title")
	flags.StringVarP(&in.Body, "body", "b", "", "Post body")
	return cmd
}

func (c *CLI) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := c.container.Posts().Delete(cmd.Context(), id); err != nil {
				if err := c.retryFailure(cmd, presentable(err, nil)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted post %d\n", id)
			return nil
		},
	}
}

func (c *CLI) newEnvsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List the configured environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envs := c.container.Environments()
			urls := c.container.Config().Environments

			for _, name := range envs.Names() {
				marker := " "
				if name == envs.Active() {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %s\n", marker, name, urls[name])
			}
			return nil
		},
	}
}

// loadPages loads the first page and then up to pages-1 further pages of the
// list stored under key.
func loadPages[T any](
	c *CLI,
	cmd *cobra.Command,
	key cache.QueryKey,
	pages int,
	first, next func(context.Context) (posts.Listing[T], error),
	peek func() posts.Listing[T],
) (posts.Listing[T], error) {
	listing, err := settle(c, cmd, key, first, peek)
	for loaded := 1; err == nil && loaded < pages && listing.HasMore; loaded++ {
		listing, err = settle(c, cmd, key, next, peek)
	}
	return listing, err
}

// settle runs fetch once. A failure stored under key is retried through the
// query cache and the listing is then re-read from it.
func settle[T any](
	c *CLI,
	cmd *cobra.Command,
	key cache.QueryKey,
	fetch func(context.Context) (posts.Listing[T], error),
	peek func() posts.Listing[T],
) (posts.Listing[T], error) {
	listing, err := fetch(cmd.Context())
	if err == nil {
		err = listing.Err
	}
	if err == nil {
		return listing, nil
	}

	f := c.container.Queries().Failure(key)
	if f == nil {
		return listing, presentable(err, nil)
	}
	if err := c.retryFailure(cmd, f); err != nil {
		return listing, err
	}
	return peek(), nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", arg)
	}
	return id, nil
}

func printFooter(out io.Writer, n int, more bool) {
	if more {
		fmt.Fprintf(out, "%d loaded, more available\n", n)
		return
	}
	fmt.Fprintf(out, "%d loaded\n", n)
}
