package vulntrack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	ciProvider string
	ciFailOn   string
)

func init() {
	ci := &cobra.Command{Use: "ci", Short: "CI template helpers for multiple providers"}
	rootCmd.AddCommand(ci)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a scheduled pipeline that gates on new open findings",
		Long: "The pipeline runs 'vulntrack findings --baseline .vulntrack-baseline.json --fail-on <level>' against the backend " +
			"with VULNTRACK_API_URL and VULNTRACK_TOKEN taken from CI secrets, and keeps the JSON report as an artifact.",
		RunE: runCIInit,
	}
	initCmd.Flags().StringVar(&ciProvider, "provider", "", "CI provider: github | gitlab | azure")
	initCmd.Flags().StringVar(&ciFailOn, "fail-on", "high", "severity that fails the pipeline")
	if err := initCmd.MarkFlagRequired("provider"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not mark --provider as required:", err)
	}
	ci.AddCommand(initCmd)
}

func ciCommand(failOn string) string {
	return "vulntrack findings --json --no-update-check --baseline .vulntrack-baseline.json --fail-on " + failOn + " | tee vulntrack-findings.json"
}

func runCIInit(cmd *cobra.Command, _ []string) error {
	run := ciCommand(ciFailOn)
	var path, content string
	switch ciProvider {
	case "github":
		path = filepath.Join(".github", "workflows", "vulntrack.yml")
		content = `name: vulntrack
on:
  schedule:
    - cron: "0 6 * * 1-5"
  workflow_dispatch:
jobs:
  findings:
    runs-on: ubuntu-latest
    env:
      VULNTRACK_API_URL: ${{ secrets.VULNTRACK_API_URL }}
      VULNTRACK_TOKEN: ${{ secrets.VULNTRACK_TOKEN }}
    steps:
      - uses: actions/checkout@v4
      - uses: actions/setup-go@v5
        with:
          go-version: "1.25"
      - run: go install github.com/vulntrack/vulntrack@latest
      - run: ` + run + `
      - uses: actions/upload-artifact@v4
        if: always()
        with:
          name: vulntrack-findings
          path: vulntrack-findings.json
`
	case "gitlab":
		path = ".gitlab-ci.yml"
		content = `stages: [findings]
findings:
  stage: findings
  image: golang:1.25
  rules:
    - if: $CI_PIPELINE_SOURCE == "schedule"
  script:
    - go install github.com/vulntrack/vulntrack@latest
    - ` + run + `
  artifacts:
    when: always
    paths:
      - vulntrack-findings.json
`
	case "azure":
		path = "azure-pipelines.yml"
		content = `schedules:
- cron: "0 6 * * 1-5"
  branches:
    include: [main]
  always: true

pool:
  vmImage: 'ubuntu-latest'

steps:
- task: GoTool@0
  inputs:
    version: '1.25.x'
- script: |
    go install github.com/vulntrack/vulntrack@latest
    ` + run + `
  displayName: 'vulntrack findings'
  env:
    VULNTRACK_API_URL: $(VULNTRACK_API_URL)
    VULNTRACK_TOKEN: $(VULNTRACK_TOKEN)
- publish: vulntrack-findings.json
  artifact: vulntrack-findings
  condition: succeededOrFailed()
`
	default:
		return fmt.Errorf("unknown --provider. Supported: github, gitlab, azure")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
	return nil
}
