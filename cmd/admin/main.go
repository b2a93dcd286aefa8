package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/ruteri/form-intake-backend/api/clients"
	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/urfave/cli/v2"
)

var flagServer *cli.StringFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "Form intake server address",
	EnvVars: []string{"INTAKE_SERVER"},
}
var flagUsername *cli.StringFlag = &cli.StringFlag{
	Name:    "username",
	Value:   "admin",
	Usage:   "Operator username",
	EnvVars: []string{"ADMIN_USERNAME"},
}
var flagPassword *cli.StringFlag = &cli.StringFlag{
	Name:    "password",
	Usage:   "Operator password",
	EnvVars: []string{"ADMIN_PASSWORD"},
}

var flagEndpoint *cli.StringFlag = &cli.StringFlag{
	Name:  "endpoint",
	Value: interfaces.AllEndpoints,
	Usage: "Endpoint name, or 'all'",
}
var flagSearch *cli.StringFlag = &cli.StringFlag{
	Name:  "search",
	Usage: "Case-insensitive search over submission values",
}
var flagLimit *cli.IntFlag = &cli.IntFlag{
	Name:  "limit",
	Value: interfaces.DefaultQueryLimit,
}
var flagOffset *cli.IntFlag = &cli.IntFlag{
	Name: "offset",
}
var flagDays *cli.IntFlag = &cli.IntFlag{
	Name:  "days",
	Value: 30,
	Usage: "Analytics window in days",
}
var flagOutput *cli.StringFlag = &cli.StringFlag{
	Name:  "output",
	Usage: "Write the export to this file instead of stdout",
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	app := &cli.App{
		Name:           "intake-admin",
		Usage:          "Operator client for the form intake server",
		DefaultCommand: "endpoints",
		Flags:          []cli.Flag{flagServer, flagUsername, flagPassword},
		Commands: []*cli.Command{
			{
				Name:  "session",
				Usage: "Log in and print the session",
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					session, err := c.Session(ctx)
					if err != nil {
						return err
					}
					return printJSON(session)
				}),
			},
			{
				Name:  "list",
				Usage: "List submissions, newest first",
				Flags: []cli.Flag{flagEndpoint, flagSearch, flagLimit, flagOffset},
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					page, err := c.ListSubmissions(ctx, interfaces.SubmissionQuery{
						Endpoint: cCtx.String(flagEndpoint.Name),
						Search:   cCtx.String(flagSearch.Name),
						Limit:    cCtx.Int(flagLimit.Name),
						Offset:   cCtx.Int(flagOffset.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(page)
				}),
			},
			{
				Name:      "get",
				Usage:     "Print one submission",
				ArgsUsage: "<id>",
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					id, err := requireArg(cCtx, "id")
					if err != nil {
						return err
					}
					sub, err := c.GetSubmission(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(sub)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete one submission",
				ArgsUsage: "<id>",
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					id, err := requireArg(cCtx, "id")
					if err != nil {
						return err
					}
					if err := c.DeleteSubmission(ctx, id); err != nil {
						return err
					}
					fmt.Println("deleted", id)
					return nil
				}),
			},
			{
				Name:  "endpoints",
				Usage: "List endpoints with unseen-submission markers",
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					endpoints, err := c.Endpoints(ctx)
					if err != nil {
						return err
					}
					return printJSON(endpoints)
				}),
			},
			{
				Name:      "view",
				Usage:     "Mark an endpoint as viewed",
				ArgsUsage: "<endpoint>",
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					endpoint, err := requireArg(cCtx, "endpoint")
					if err != nil {
						return err
					}
					view, err := c.MarkViewed(ctx, endpoint)
					if err != nil {
						return err
					}
					return printJSON(view)
				}),
			},
			{
				Name:      "export",
				Usage:     "Download the CSV export of an endpoint",
				ArgsUsage: "<endpoint>",
				Flags:     []cli.Flag{flagOutput},
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					endpoint, err := requireArg(cCtx, "endpoint")
					if err != nil {
						return err
					}
					csv, err := c.ExportCSV(ctx, endpoint)
					if err != nil {
						return err
					}
					if out := cCtx.String(flagOutput.Name); out != "" {
						return os.WriteFile(out, []byte(csv), 0600)
					}
					fmt.Print(csv)
					return nil
				}),
			},
			{
				Name:  "analytics",
				Usage: "Print the analytics report",
				Flags: []cli.Flag{flagDays},
				Action: withClient(func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error {
					report, err := c.Analytics(ctx, cCtx.Int(flagDays.Name))
					if err != nil {
						return err
					}
					return printJSON(report)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withClient logs in before running the command and logs out afterwards.
func withClient(fn func(ctx context.Context, c *clients.AdminClient, cCtx *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		ctx := cCtx.Context
		client, err := clients.NewAdminClient(cCtx.String(flagServer.Name))
		if err != nil {
			return err
		}
		if err := client.Login(ctx, cCtx.String(flagUsername.Name), cCtx.String(flagPassword.Name)); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		defer client.Logout(ctx)

		return fn(ctx, client, cCtx)
	}
}

func requireArg(cCtx *cli.Context, name string) (string, error) {
	if cCtx.NArg() < 1 || cCtx.Args().First() == "" {
		return "", fmt.Errorf("missing <%s> argument", name)
	}
	return cCtx.Args().First(), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
