package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"firexview/cli/internal/config"
	"firexview/cli/internal/graph"
)

type Deps struct {
	LoadConfig func() config.Config
	Watch      func(context.Context, config.Config) error
	Tree       func(ctx context.Context, cfg config.Config, root string) ([]graph.Task, error)
	Search     func(ctx context.Context, cfg config.Config, term string) ([]graph.Task, error)
	Revoke     func(ctx context.Context, cfg config.Config, uuid string) (json.RawMessage, error)
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "firexview",
		Usage: "live task graph viewer for firex runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "run server websocket url"},
			&cli.StringFlag{Name: "backend", Usage: "api backend"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: func(c *cli.Context) error {
			return runWatch(c, deps)
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "connect, load the graph and follow live updates",
				Action: func(c *cli.Context) error {
					return runWatch(c, deps)
				},
			},
			{
				Name:  "tree",
				Usage: "print the task tree under the active root",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "root", Usage: "task uuid to narrow the view to"},
				},
				Action: func(c *cli.Context) error {
					if deps.Tree == nil {
						return errors.New("tree runner is not configured")
					}
					tasks, err := deps.Tree(c.Context, loadConfig(c, deps), strings.TrimSpace(c.String("root")))
					if err != nil {
						return err
					}
					printTree(c.App.Writer, tasks)
					return nil
				},
			},
			{
				Name:      "search",
				Usage:     "list tasks matching TERM",
				ArgsUsage: "TERM",
				Action: func(c *cli.Context) error {
					if deps.Search == nil {
						return errors.New("search runner is not configured")
					}
					term := c.Args().First()
					if term == "" {
						return errors.New("search term is required")
					}
					tasks, err := deps.Search(c.Context, loadConfig(c, deps), term)
					if err != nil {
						return err
					}
					printList(c.App.Writer, tasks)
					return nil
				},
			},
			{
				Name:      "revoke",
				Usage:     "ask the server to revoke a task",
				ArgsUsage: "UUID",
				Action: func(c *cli.Context) error {
					if deps.Revoke == nil {
						return errors.New("revoke runner is not configured")
					}
					uuid := strings.TrimSpace(c.Args().First())
					if uuid == "" {
						return errors.New("task uuid is required")
					}
					out, err := deps.Revoke(c.Context, loadConfig(c, deps), uuid)
					if err != nil {
						return err
					}
					printRevoked(c.App.Writer, uuid, out)
					return nil
				},
			},
		},
	}
}

func runWatch(c *cli.Context, deps Deps) error {
	if deps.Watch == nil {
		return errors.New("watch runner is not configured")
	}
	return deps.Watch(c.Context, loadConfig(c, deps))
}

// loadConfig applies global flags on top of the loaded config.
func loadConfig(c *cli.Context, deps Deps) config.Config {
	var cfg config.Config
	if deps.LoadConfig != nil {
		cfg = deps.LoadConfig()
	} else {
		cfg = config.LoadConfig()
	}
	if v := strings.TrimSpace(c.String("server")); v != "" {
		cfg.ServerURL = v
	}
	if v := strings.TrimSpace(c.String("backend")); v != "" {
		cfg.APIBackend = v
	}
	if v := strings.TrimSpace(c.String("log-level")); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

func printTree(out io.Writer, tasks []graph.Task) {
	depth := make(map[string]int, len(tasks))
	for _, t := range tasks {
		d := 0
		if parent, ok := depth[t.Parent()]; ok {
			d = parent + 1
		}
		depth[t.UUID] = d
		fmt.Fprintf(out, "%s%s  %s  %s\n", strings.Repeat("  ", d), t.UUID, displayState(t.State), t.Name)
	}
}

func printList(out io.Writer, tasks []graph.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "no matches")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(out, "%s  %s  %s\n", t.UUID, displayState(t.State), t.Name)
	}
}

func printRevoked(out io.Writer, uuid string, payload json.RawMessage) {
	if len(payload) == 0 {
		fmt.Fprintf(out, "revoked %s\n", uuid)
		return
	}
	fmt.Fprintf(out, "revoked %s: %s\n", uuid, string(payload))
}

func displayState(s graph.State) string {
	if s == "" {
		return "-"
	}
	return string(s)
}
