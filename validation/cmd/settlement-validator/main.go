package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/blockauction/auctionapi"
	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/validation"
)

func main() {
	var (
		auctionInput     = flag.String("auction", "", "Auction JSON (file path or inline JSON)")
		bidsInput        = flag.String("bids", "", "Finalized bid snapshot JSON array (file path or inline JSON)")
		attestationInput = flag.String("attestation", "", "Base64 COSE attestation (file path or inline string)")
		pcrConfig        = flag.String("pcr-config", "", "Path to known-good PCR sets (default: built-in pcrs.json)")
		outputFormat     = flag.String("format", "text", "Output format: text or json")
		help             = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *auctionInput == "" || *bidsInput == "" || *attestationInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: All three inputs are required (--auction, --bids, --attestation)\n")
		os.Exit(1)
	}

	auctionJSON, err := readInput(*auctionInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading auction: %v\n", err)
		os.Exit(2)
	}
	bidsJSON, err := readInput(*bidsInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading bids: %v\n", err)
		os.Exit(2)
	}
	attestation, err := readInput(*attestationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}

	var auction core.Auction
	if err := json.Unmarshal(auctionJSON, &auction); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing auction: %v\n", err)
		os.Exit(2)
	}
	var bids []core.Bid
	if err := json.Unmarshal(bidsJSON, &bids); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing bids: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateSettlement(&validation.SettlementValidationInput{
		Attestation:   auctionapi.AttestationCOSEBase64(strings.TrimSpace(string(attestation))),
		Auction:       auction,
		Bids:          bids,
		PCRConfigPath: *pcrConfig,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("Blockspace Settlement Validator")
	fmt.Println()
	fmt.Println("Verifies a sealed auction settlement: enclave measurements, certificate")
	fmt.Println("chain, COSE signature, and the auction outcome itself (input hash plus")
	fmt.Println("re-run of winner selection over the disclosed bid snapshot).")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  settlement-validator --auction <json> --bids <json> --attestation <b64> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --auction <json>       The auction as known to the verifier (from the listing)")
	fmt.Println("  --bids <json>          Finalized bid snapshot, bid id ascending")
	fmt.Println("  --attestation <b64>    Base64 COSE attestation from the settlement response")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --pcr-config <path>    Known-good PCR sets JSON (default: built-in)")
	fmt.Println("  --format <text|json>   Output format (default: text)")
	fmt.Println("  --help                 Show this help message")
	fmt.Println()
	fmt.Println("Input Format:")
	fmt.Println("  Each flag accepts either a file path or an inline value.")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readInput(input string) ([]byte, error) {
	// Try reading as file first, fall back to inline value.
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	return []byte(input), nil
}

func outputJSON(result *validation.SettlementValidationResult) {
	out := map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"payload_valid":     result.PayloadValid,
		"selection_valid":   result.SelectionValid,
		"details":           result.ValidationDetails,
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func outputText(result *validation.SettlementValidationResult) {
	status := func(ok bool) string {
		if ok {
			return "PASS"
		}
		return "FAIL"
	}
	fmt.Println("Settlement Validation Results")
	fmt.Println("=============================")
	fmt.Printf("PCR measurements:   %s\n", status(result.PCRsValid))
	fmt.Printf("Certificate chain:  %s\n", status(result.CertificateValid))
	fmt.Printf("COSE signature:     %s\n", status(result.SignatureValid))
	fmt.Printf("Sealed payload:     %s\n", status(result.PayloadValid))
	fmt.Printf("Winner selection:   %s\n", status(result.SelectionValid))
	fmt.Println()
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}
	fmt.Println()
	if result.IsValid() {
		fmt.Println("RESULT: VALID")
	} else {
		fmt.Println("RESULT: INVALID")
	}
}
