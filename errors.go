/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/fatih/color"
)

var errorTag = color.New(color.FgRed, color.Bold).SprintFunc()

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// errorf is always printed, verbose or not.
func errorf(format string, args ...any) {
	log.Printf("%s | %s: "+format, append([]any{time.Now().Format(logDate), errorTag("ERROR")}, args...)...)
}

func newPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(cfg))
	htmlBody.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/dragon/app.css">`, cfg.prefix))
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf(`<body><main class="card"><h1>%s</h1><p>%s</p><p><a href="%s/">Back to the village</a></p></main></body></html>`,
		html.EscapeString(title), html.EscapeString(body), cfg.prefix))

	return htmlBody.String()
}
