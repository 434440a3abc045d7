package contract

import (
	_ "embed"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

//go:embed voting.abi.json
var votingABI string

// Interface is a contract ABI known to expose the Voting methods.
type Interface struct {
	abi abi.ABI
}

type expectedMethod struct {
	name    string
	sig     string
	view    bool
	outputs []string
}

var requiredMethods = []expectedMethod{
	{name: "getAllCandidates", sig: "getAllCandidates()", view: true, outputs: []string{"(uint256,string,uint256)[]"}},
	{name: "vote", sig: "vote(uint256)"},
	{name: "addCandidate", sig: "addCandidate(string)"},
	{name: "resetVotes", sig: "resetVotes()"},
}

// candidateFields are the tuple components getAllCandidates must return,
// in order.
var candidateFields = []string{"id", "name", "voteCount"}

// VotingInterface returns the bundled Voting ABI.
func VotingInterface() (*Interface, error) {
	return ParseInterface(strings.NewReader(votingABI))
}

// ParseInterface parses an ABI JSON document and checks it against the
// Voting methods. Any mismatch is models.ErrInterfaceMismatch.
func ParseInterface(r io.Reader) (*Interface, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInterfaceMismatch, err)
	}
	for _, want := range requiredMethods {
		if err := checkMethod(parsed, want); err != nil {
			return nil, err
		}
	}
	return &Interface{abi: parsed}, nil
}

func checkMethod(parsed abi.ABI, want expectedMethod) error {
	m, ok := parsed.Methods[want.name]
	if !ok {
		return fmt.Errorf("%w: missing method %s", models.ErrInterfaceMismatch, want.sig)
	}
	if m.Sig != want.sig {
		return fmt.Errorf("%w: %s has signature %s, want %s", models.ErrInterfaceMismatch, want.name, m.Sig, want.sig)
	}
	if m.IsConstant() != want.view {
		return fmt.Errorf("%w: %s view=%t, want %t", models.ErrInterfaceMismatch, want.name, m.IsConstant(), want.view)
	}
	var outputs []string
	for _, o := range m.Outputs {
		outputs = append(outputs, o.Type.String())
	}
	if !slices.Equal(outputs, want.outputs) {
		return fmt.Errorf("%w: %s returns %v, want %v", models.ErrInterfaceMismatch, want.name, outputs, want.outputs)
	}
	if want.name == "getAllCandidates" {
		elem := m.Outputs[0].Type.Elem
		if elem == nil || !slices.Equal(elem.TupleRawNames, candidateFields) {
			return fmt.Errorf("%w: candidate tuple fields must be %v", models.ErrInterfaceMismatch, candidateFields)
		}
	}
	return nil
}
