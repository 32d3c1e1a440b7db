package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"personarag/internal/domain"
	"personarag/internal/tui"
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The TUI owns the terminal; logs go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "personarag.log")
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	personas := cfg.PersonaList()
	m := tui.New(ctx, a.orchestrator, personas)
	persona, _ := cmd.Flags().GetString("persona")
	if persona == "" && len(personas) == 1 {
		persona = personas[0].ID
	}
	var initial tea.Cmd
	if persona != "" {
		p, ok := a.store.Persona(persona)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownPersona, persona)
		}
		m, initial = m.SelectPersona(p)
	}

	a.logger.Info().Int("personas", len(personas)).Msg("starting chat")
	prog := tea.NewProgram(startModel{Model: m, initial: initial}, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	return err
}

// startModel runs the persona preselection command alongside the TUI's own Init.
type startModel struct {
	tui.Model
	initial tea.Cmd
}

func (s startModel) Init() tea.Cmd {
	return tea.Batch(s.Model.Init(), s.initial)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	personaID, _ := cmd.Flags().GetString("persona")
	utterance := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if show, _ := cmd.Flags().GetBool("show-context"); show {
		ret, err := a.orchestrator.Retrieve(cmd.Context(), domain.Query{PersonaID: personaID, Utterance: utterance})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "--- context (records %v) ---\n%s\n---\n", ret.Hits.Indices(), ret.Context)
	}

	sess, err := a.orchestrator.NewSession(personaID)
	if err != nil {
		return err
	}
	reply, err := a.orchestrator.HandleTurn(cmd.Context(), sess, utterance)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply.Content)
	return nil
}

func runPersonas(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	personas := cfg.PersonaList()
	if len(personas) == 0 {
		fmt.Fprintln(out, "no personas configured")
		return nil
	}
	for _, p := range personas {
		line := fmt.Sprintf("%-12s %s", p.ID, p.Name())
		if p.Description != "" {
			line += "  " + p.Description
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
