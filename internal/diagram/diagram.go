// Package diagram builds the platform flow diagrams as DOT and renders them to
// SVG with Graphviz.
package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"golang.org/x/sync/errgroup"

	"github.com/xao-fun/xao-go/internal/metrics"
)

// ErrNoGraphviz is returned when the dot binary is not on PATH.
var ErrNoGraphviz = errors.New("graphviz dot binary not found")

// Node is a labelled, filled box.
type Node struct {
	ID        string
	Label     string
	Fill      string
	FontColor string
}

// Edge is a labelled directed edge between node IDs.
type Edge struct {
	From  string
	To    string
	Label string
}

// Flow is one directed diagram.
type Flow struct {
	Key     string
	Name    string // DOT graph name
	File    string // output basename, without extension
	Comment string
	RankDir string
	Splines string
	Nodes   []Node
	Edges   []Edge
}

var nodeStyle = map[string]string{
	"shape":    "box",
	"style":    "rounded,filled",
	"fontname": "Arial",
	"fontsize": "12",
	"margin":   "0.2",
	"width":    "2",
}

var edgeStyle = map[string]string{
	"fontname": "Arial",
	"fontsize": "10",
	"color":    "#666666",
	"penwidth": "1.5",
}

func quoted(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = strconv.Quote(v)
	}
	return out
}

// DOT returns the flow as a Graphviz digraph.
func (f Flow) DOT() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(f.Name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	for k, v := range map[string]string{"rankdir": f.RankDir, "splines": f.Splines, "comment": f.Comment} {
		if err := g.AddAttr(f.Name, k, strconv.Quote(v)); err != nil {
			return "", fmt.Errorf("%s: graph attr %s: %w", f.Key, k, err)
		}
	}

	for _, n := range f.Nodes {
		attrs := quoted(nodeStyle)
		attrs["label"] = strconv.Quote(n.Label)
		attrs["fillcolor"] = strconv.Quote(n.Fill)
		attrs["fontcolor"] = strconv.Quote(n.FontColor)
		if err := g.AddNode(f.Name, n.ID, attrs); err != nil {
			return "", fmt.Errorf("%s: node %s: %w", f.Key, n.ID, err)
		}
	}

	for _, e := range f.Edges {
		if !g.IsNode(e.From) || !g.IsNode(e.To) {
			return "", fmt.Errorf("%s: edge %s -> %s references unknown node", f.Key, e.From, e.To)
		}
		attrs := quoted(edgeStyle)
		attrs["label"] = strconv.Quote(e.Label)
		if err := g.AddEdge(e.From, e.To, true, attrs); err != nil {
			return "", fmt.Errorf("%s: edge %s -> %s: %w", f.Key, e.From, e.To, err)
		}
	}
	return g.String(), nil
}

// Render writes <dir>/<File>.svg and returns its path.
func Render(ctx context.Context, f Flow, dir string) (string, error) {
	dot, err := exec.LookPath("dot")
	if err != nil {
		return "", ErrNoGraphviz
	}
	src, err := f.DOT()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	path := filepath.Join(dir, f.File+".svg")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, dot, "-Tsvg", "-o", path)
	cmd.Stdin = strings.NewReader(src)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("render %s: %w: %s", f.Key, err, strings.TrimSpace(stderr.String()))
	}
	metrics.AssetsGenerated.WithLabelValues("diagram").Inc()
	return path, nil
}

// RenderAll renders flows concurrently and returns the written paths in input order.
func RenderAll(ctx context.Context, flows []Flow, dir string) ([]string, error) {
	paths := make([]string, len(flows))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range flows {
		g.Go(func() error {
			p, err := Render(ctx, f, dir)
			paths[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
