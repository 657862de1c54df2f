/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// The triagebot command is a chat-style CLI client for the triage API.
// It obtains bearer tokens from an external command, lists and inspects
// incidents, and forwards free-text lines to a chat-completion endpoint.
package main

import (
	"bufio"
	"context"
	"fmt"
	golog "log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from the environment.
type Config struct {
	ServerURL      string        `env:"TRIAGEBOT_SERVER_URL" env-default:"http://localhost:5000"`
	TokenCommand   string        `env:"TRIAGEBOT_TOKEN_COMMAND" env-default:"az account get-access-token --query accessToken -o tsv"`
	ChatEndpoint   string        `env:"TRIAGEBOT_CHAT_URL" env-default:""`
	RequestTimeout time.Duration `env:"TRIAGEBOT_REQUEST_TIMEOUT" env-default:"30s"`
}

func main() {
	if err := run(); err != nil {
		golog.Fatal(err)
	}
}

func run() error {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	client := newAPIClient(cfg.ServerURL, httpClient, commandTokenSource(cfg.TokenCommand))

	fmt.Println("Security incident triage bot. Commands: login, incidents [limit], incident <id>, metrics, quit.")
	fmt.Println("Anything else is sent to the chat assistant.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := dispatch(client, httpClient, cfg.ChatEndpoint, line); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func dispatch(client *apiClient, httpClient *http.Client, chatEndpoint, line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fields := strings.Fields(line)
	switch fields[0] {
	case "login":
		data, err := client.Login(ctx)
		if err != nil {
			return err
		}
		printUserInfo(data)
		return nil

	case "incidents":
		limit := 10
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return fmt.Errorf("limit must be a number: %q", fields[1])
			}
			limit = n
		}
		data, err := client.ListIncidents(ctx, limit, "", "")
		if err != nil {
			return err
		}
		printIncidents(data)
		return nil

	case "incident":
		if len(fields) < 2 {
			return fmt.Errorf("usage: incident <id>")
		}
		data, err := client.GetIncident(ctx, fields[1])
		if err != nil {
			return err
		}
		printIncidentDetail(data)
		return nil

	case "metrics":
		data, err := client.MetricsDashboard(ctx)
		if err != nil {
			return err
		}
		printMetrics(data)
		return nil

	default:
		reply, err := chatCompletion(ctx, httpClient, chatEndpoint, line)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}
}

func printUserInfo(data map[string]interface{}) {
	fmt.Println("Logged in.")
	userInfo, ok := data["user_info"].(map[string]interface{})
	if !ok {
		return
	}
	if name, ok := userInfo["name"].(string); ok && name != "" {
		fmt.Printf("  user:   %s\n", name)
	}
	if email, ok := userInfo["email"].(string); ok && email != "" {
		fmt.Printf("  email:  %s\n", email)
	}
	if tenantID, ok := userInfo["tenant_id"].(string); ok && tenantID != "" {
		fmt.Printf("  tenant: %s\n", tenantID)
	}
}

func printIncidents(data map[string]interface{}) {
	incidents, _ := data["incidents"].([]interface{})
	fmt.Printf("%d incident(s):\n", len(incidents))
	for _, item := range incidents {
		incident, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  [%-8s] %-13s %s (%s)\n",
			incident["severity"], incident["status"], incident["title"], incident["id"])
	}
}

func printIncidentDetail(data map[string]interface{}) {
	fmt.Printf("%s\n", data["title"])
	fmt.Printf("  id:          %s\n", data["id"])
	fmt.Printf("  severity:    %s\n", data["severity"])
	fmt.Printf("  status:      %s\n", data["status"])
	fmt.Printf("  assigned to: %s\n", data["assignedTo"])
	if description, ok := data["description"].(string); ok {
		fmt.Printf("  %s\n", description)
	}
	if recommendations, ok := data["recommendations"].([]interface{}); ok && len(recommendations) > 0 {
		fmt.Println("  recommendations:")
		for _, rec := range recommendations {
			fmt.Printf("    - %s\n", rec)
		}
	}
}

func printMetrics(data map[string]interface{}) {
	summary, ok := data["summary"].(map[string]interface{})
	if !ok {
		fmt.Println("No summary available.")
		return
	}
	fmt.Println("Security metrics (last 30 days):")
	fmt.Printf("  total incidents:    %v\n", summary["totalIncidents"])
	fmt.Printf("  open incidents:     %v\n", summary["openIncidents"])
	fmt.Printf("  critical incidents: %v\n", summary["criticalIncidents"])
	fmt.Printf("  new (24h):          %v\n", summary["newLast24h"])
	fmt.Printf("  resolved (24h):     %v\n", summary["resolvedLast24h"])
	fmt.Printf("  mean time to resolution: %vh\n", summary["meanTimeToResolution"])
}
