package main

import (
	"flag"
	"log"

	"zkcred-be/internal/config"
	"zkcred-be/pkg/proof"
)

// setup compiles the configured circuit, runs a single-party Groth16
// setup and writes the artifacts the service loads at start-up.
func main() {
	cfg := config.Load()

	dir := flag.String("out", cfg.Proof.ArtifactsDir, "artifacts directory")
	bind := flag.Bool("bind-claim", cfg.Proof.BindClaim, "use the threshold circuit")
	force := flag.Bool("force", false, "overwrite existing artifacts")
	flag.Parse()

	if proof.ArtifactsExist(*dir) && !*force {
		log.Fatalf("Artifacts already exist in %s (use -force to overwrite)", *dir)
	}

	kind := proof.ParseCircuitKind(*bind)
	log.Printf("Compiling %s circuit and running setup...", kind)

	artifacts, err := proof.Setup(kind)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	if err := artifacts.Save(*dir); err != nil {
		log.Fatalf("Saving artifacts failed: %v", err)
	}

	log.Printf("✅ Artifacts written to %s", *dir)
}
