// Package banner prints the startup summary.
package banner

import (
	"fmt"

	"anonboard/pkg/config"
)

const banner = `
 █████╗ ███╗   ██╗ ██████╗ ███╗   ██╗██████╗  ██████╗  █████╗ ██████╗ ██████╗
██╔══██╗████╗  ██║██╔═══██╗████╗  ██║██╔══██╗██╔═══██╗██╔══██╗██╔══██╗██╔══██╗
███████║██╔██╗ ██║██║   ██║██╔██╗ ██║██████╔╝██║   ██║███████║██████╔╝██║  ██║
██╔══██║██║╚██╗██║██║   ██║██║╚██╗██║██╔══██╗██║   ██║██╔══██║██╔══██╗██║  ██║
██║  ██║██║ ╚████║╚██████╔╝██║ ╚████║██████╔╝╚██████╔╝██║  ██║██║  ██║██████╔╝
╚═╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝ ╚═╝  ╚═══╝╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`

// Print renders the startup banner from the effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	fmt.Printf("Engine:   %s\n", eff.Config.Server.Engine)
	fmt.Printf("Source:   %s\n", eff.Source)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if eff.Config.AI.Enabled {
		fmt.Printf("AI:       enabled (%d models)\n", len(eff.Config.AI.Models))
	} else {
		fmt.Println("AI:       disabled")
	}
	if eff.Config.Ingest.Enabled {
		fmt.Printf("Ingest:   %s (%d topics)\n", eff.Config.Ingest.Cron, len(eff.Config.Ingest.Topics))
	} else {
		fmt.Println("Ingest:   disabled")
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/boards              - List boards")
	fmt.Println("GET  /v1/boards/{id}         - Board with its thread listing")
	fmt.Println("POST /v1/threads             - Create a thread (JSON: board, title, content)")
	fmt.Println("GET  /v1/threads/{id}        - Thread with posts and resolved anchors")
	fmt.Println("POST /v1/threads/{id}/posts  - Reply to a thread (JSON: content)")
	fmt.Println("GET  /v1/archive             - Archived threads")
	fmt.Println("GET  /v1/search?q=           - Search titles and posts")
	fmt.Println("POST /v1/discover            - Personalized thread picks")
	fmt.Println("POST /v1/reports             - Report a post")
	fmt.Println("POST /v1/generate            - Seed a thread from a link")
}
