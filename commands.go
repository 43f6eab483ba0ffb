package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autopost/generator"
	"autopost/imagegen"
	"autopost/post"
)

var (
	cfgFile string
	verbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autopost",
		Short:         "Draft, schedule and publish social media posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.json (default config/config.json when present)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newServeCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newPostCmd())
	root.AddCommand(newPublishCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newRunDueCmd())
	return root
}

// withApp builds the app, runs fn and closes storage afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePlatforms(names []string) ([]post.Platform, error) {
	out := make([]post.Platform, 0, len(names))
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			pl, err := post.ParsePlatform(part)
			if err != nil {
				return nil, err
			}
			out = append(out, pl)
		}
	}
	return out, nil
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withApp(cmd, func(ctx context.Context, a *app) error {
				listen := a.cfg.Server.Addr
				if addr != "" {
					listen = addr
				}
				srv, err := a.httpServer(listen)
				if err != nil {
					return err
				}

				if iv := a.cfg.Scheduler.Interval; iv > 0 {
					// storage is closed by withApp once this returns
					stop := startRunner(ctx, func(ctx context.Context) { a.sched.Run(ctx, iv) })
					defer stop()
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.WithField("addr", listen).Info("http server listening")
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// startRunner runs fn in the background. The returned stop cancels fn's
// context and waits for fn to return.
func startRunner(ctx context.Context, fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate post copy or images",
	}

	var req generator.TextRequest
	var platform, tone string
	text := &cobra.Command{
		Use:   "text",
		Short: "Generate post copy for a prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Platform = post.Platform(platform)
			req.Tone = generator.Tone(tone)
			return withApp(cmd, func(ctx context.Context, a *app) error {
				content, err := a.text.GenerateText(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), content)
				return nil
			})
		},
	}
	text.Flags().StringVar(&req.Prompt, "prompt", "", "what the post is about")
	text.Flags().StringVar(&platform, "platform", "", "twitter, linkedin or facebook")
	text.Flags().StringVar(&tone, "tone", "", "professional, casual or humorous")
	text.Flags().IntVar(&req.MaxLength, "max-length", 0, "maximum characters")

	var imgReq imagegen.ImageRequest
	var style, ratio string
	image := &cobra.Command{
		Use:   "image",
		Short: "Generate an image and print its URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			imgReq.Style = imagegen.Style(style)
			imgReq.AspectRatio = imagegen.AspectRatio(ratio)
			return withApp(cmd, func(ctx context.Context, a *app) error {
				url, err := a.images.GenerateImage(ctx, imgReq)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
	image.Flags().StringVar(&imgReq.Prompt, "prompt", "", "image description")
	image.Flags().StringVar(&style, "style", "", "photorealistic, cartoon, abstract or 3d-render")
	image.Flags().StringVar(&ratio, "aspect-ratio", "", "1:1, 16:9, 4:3 or 9:16")
	image.Flags().StringVar(&imgReq.NegativePrompt, "negative", "", "what to keep out of the image")

	cmd.AddCommand(text, image)
	return cmd
}

func newPostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Manage stored posts",
	}

	var content, imageURL string
	var platforms []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a draft post and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pls, err := parsePlatforms(platforms)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if len(pls) == 0 {
					pls = a.accounts.Preferences().DefaultPlatforms
				}
				id, err := a.posts.AddPost(ctx, post.Post{Content: content, ImageURL: imageURL, Platforms: pls})
				if err != nil {
					return err
				}
				p, _ := a.posts.GetPostByID(id)
				for _, w := range p.Warnings() {
					a.logger.Warn(w)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&content, "content", "", "post text")
	add.Flags().StringVar(&imageURL, "image", "", "image URL")
	add.Flags().StringSliceVar(&platforms, "platform", nil, "target platform, repeatable")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored posts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return printJSON(cmd, a.posts.ListPosts())
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.posts.DeletePost(ctx, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a stored post to its platforms now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.publishNow(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				if !res.Success {
					return errors.New("publish failed on at least one platform")
				}
				return nil
			})
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var content, imageURL, at, postID string
	var platforms []string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Queue a post for later publishing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
			pls, err := parsePlatforms(platforms)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				p := post.Post{Content: content, ImageURL: imageURL, Platforms: pls}
				if postID != "" {
					stored, ok := a.posts.GetPostByID(postID)
					if !ok {
						return fmt.Errorf("%w: %s", post.ErrNotFound, postID)
					}
					p = stored
					if len(pls) > 0 {
						p.Platforms = pls
					}
				}
				p.ScheduledFor = &when
				id, err := a.sched.Schedule(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "post text")
	cmd.Flags().StringVar(&imageURL, "image", "", "image URL")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "target platform, repeatable")
	cmd.Flags().StringVar(&at, "at", "", "publish time, RFC3339")
	cmd.Flags().StringVar(&postID, "post", "", "schedule an existing stored post")

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return printJSON(cmd, a.sched.List())
			})
		},
	}
	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a scheduled entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.sched.Cancel(ctx, args[0])
			})
		},
	}
	cmd.AddCommand(list, cancel)
	return cmd
}

func newRunDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Publish every scheduled entry that is due and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd, a.sched.RunDue(ctx, time.Now()))
			})
		},
	}
}
