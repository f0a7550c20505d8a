package observer

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/protectmyart/internal/metascan"
	"github.com/nao1215/protectmyart/internal/page"
)

// Relevant reports whether m can change the scan result: a robots meta
// element was added or removed, or the name or content attribute of a meta
// element changed while it was, or became, a robots meta element.
func Relevant(m page.Mutation) bool {
	switch m.Type {
	case page.MutationChildList:
		return anyRobotsMeta(m.Added) || anyRobotsMeta(m.Removed)
	case page.MutationAttributes:
		if !metascan.IsMeta(m.Target) {
			return false
		}
		switch m.AttributeName {
		case "content":
			return metascan.IsRobotsMeta(m.Target)
		case "name":
			return metascan.IsRobotsMeta(m.Target) || strings.EqualFold(strings.TrimSpace(m.OldValue), "robots")
		}
	}
	return false
}

func anyRobotsMeta(nodes []*html.Node) bool {
	for _, n := range nodes {
		if metascan.IsRobotsMeta(n) {
			return true
		}
	}
	return false
}
