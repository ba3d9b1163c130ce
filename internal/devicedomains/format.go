package devicedomains

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/devplan/internal/ir"
)

// ToString renders the root of d. A first-order domain whose scope is not fully
// constrained prints as ?<id>? followed by whatever part of its scope is known;
// a fully constrained one prints its scope; a higher-order one prints as
// fn(<params>):<result>.
func (dd *DeviceDomains) ToString(d DomainID) string {
	var sb strings.Builder

	dd.writeDomain(&sb, d)

	return sb.String()
}

func (dd *DeviceDomains) writeDomain(sb *strings.Builder, d DomainID) {
	d = dd.Lookup(d)
	node := &dd.domains[d]

	if !node.isHigherOrder() {
		if !node.scope.IsFullyConstrained() {
			fmt.Fprintf(sb, "?%d?", d)
		}

		if !node.scope.IsFullyUnconstrained() {
			sb.WriteString(node.scope.String())
		}

		return
	}

	parts := node.argsAndResult

	sb.WriteString("fn(")

	for i := 0; i+1 < len(parts); i++ {
		if i > 0 {
			sb.WriteString(",")
		}

		dd.writeDomain(sb, parts[i])
	}

	sb.WriteString("):")
	dd.writeDomain(sb, parts[len(parts)-1])
}

// String renders every cached expression and call together with its domain,
// in the order they were first queried.
func (dd *DeviceDomains) String() string {
	var sb strings.Builder

	for _, expr := range dd.exprOrder {
		fmt.Fprintf(&sb, "expression:\n%s\ndomain:\n%s\n\n", ir.PrettyPrint(expr), dd.ToString(dd.exprDomains[expr]))
	}

	for _, call := range dd.callOrder {
		fmt.Fprintf(&sb, "call:\n%s\ncallee domain:\n%s\n\n", ir.PrettyPrint(call), dd.ToString(dd.calleeDomains[call]))
	}

	return sb.String()
}
