package service

import "fmt"

// Stage names the pipeline step a turn failed in.
type Stage string

const (
	StageInput      Stage = "input"
	StageCorpus     Stage = "corpus"
	StageIndex      Stage = "index"
	StageEmbed      Stage = "embed"
	StageRetrieve   Stage = "retrieve"
	StageGeneration Stage = "generation"
)

// OrchestratorError tags a turn failure with the stage that produced it. The
// underlying error stays reachable through errors.Is/As.
type OrchestratorError struct {
	Stage     Stage
	PersonaID string
	Err       error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("turn for %q failed at %s: %v", e.PersonaID, e.Stage, e.Err)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

func stageErr(stage Stage, personaID string, err error) error {
	return &OrchestratorError{Stage: stage, PersonaID: personaID, Err: err}
}
