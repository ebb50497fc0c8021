package bootstrap

import (
	"errors"
	"fmt"

	"zkcred-be/internal/config"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/pkg/proof"
)

var ErrArtifactsMissing = errors.New("proof artifacts missing; run cmd/setup or set PROOF_DEV_SETUP=true")

// NewProofService loads (or, in development, generates) the Groth16
// artifacts and wires the prover to the relayer.
func NewProofService(cfg config.ProofConfig, log logger.ILogger) (proof.Service, error) {
	kind := proof.ParseCircuitKind(cfg.BindClaim)

	artifacts, err := loadArtifacts(cfg, kind, log)
	if err != nil {
		return nil, err
	}

	prover, err := proof.NewProver(artifacts)
	if err != nil {
		return nil, err
	}

	if kind == proof.CircuitFixed {
		log.Warn("Bootstrap", "Proofs do not bind the claim: the fixed circuit ignores the extracted value. Set PROOF_BIND_CLAIM=true for the threshold circuit", nil)
	}
	if cfg.RelayerAPIKey == "" {
		log.Warn("Bootstrap", "ZKV_API_KEY is empty, proof submission will be rejected", nil)
	}

	relayer := proof.NewRelayer(proof.RelayerConfig{
		BaseURL:         cfg.RelayerURL,
		APIKey:          cfg.RelayerAPIKey,
		PollInterval:    cfg.PollInterval,
		FinalityTimeout: cfg.FinalityTimeout,
	}, nil)

	return proof.NewAdapter(prover, relayer), nil
}

func loadArtifacts(cfg config.ProofConfig, kind proof.CircuitKind, log logger.ILogger) (*proof.Artifacts, error) {
	if proof.ArtifactsExist(cfg.ArtifactsDir) {
		artifacts, err := proof.LoadArtifacts(cfg.ArtifactsDir, kind)
		switch {
		case err == nil:
			return artifacts, nil
		case errors.Is(err, proof.ErrCircuitMismatch) && cfg.DevSetup:
			log.Warn("Bootstrap", "Artifacts on disk belong to another circuit, regenerating", map[string]interface{}{
				"circuit": string(kind),
				"error":   err.Error(),
			})
		default:
			return nil, fmt.Errorf("load proof artifacts: %w", err)
		}
	} else if !cfg.DevSetup {
		return nil, ErrArtifactsMissing
	}

	log.Warn("Bootstrap", "Running in-process trusted setup, development only", map[string]interface{}{"circuit": string(kind)})
	artifacts, err := proof.Setup(kind)
	if err != nil {
		return nil, err
	}
	if err := artifacts.Save(cfg.ArtifactsDir); err != nil {
		log.Warn("Bootstrap", "Could not save generated artifacts", map[string]interface{}{"error": err.Error()})
	}
	return artifacts, nil
}
