// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package gql exposes a read-only GraphQL introspection endpoint over
// the mesh's current registry state. It plays the same role the
// teacher's pkg/gql/query root plays for chain state — a single Query
// object built once at startup — but the fields here name peers rather
// than blocks, transactions, and mempool entries.
package gql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/Leonqn/p2p-console-app/internal/registry"
)

// Root holds the Query root object for the mesh schema.
type Root struct {
	Query *graphql.Object
}

// NewRoot builds the Query root, backed by reg for live peer data.
func NewRoot(reg *registry.Registry) *Root {
	peerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Peer",
		Fields: graphql.Fields{
			"address": &graphql.Field{Type: graphql.String},
		},
	})

	peersField := &graphql.Field{
		Type: graphql.NewList(peerType),
		Name: "peers",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			snap := reg.Snapshot()
			out := make([]map[string]string, 0, len(snap))
			for _, a := range snap {
				out = append(out, map[string]string{"address": a.String()})
			}
			return out, nil
		},
	}

	peerCountField := &graphql.Field{
		Type: graphql.Int,
		Name: "peerCount",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return reg.Len(), nil
		},
	}

	return &Root{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"peers":     peersField,
				"peerCount": peerCountField,
			},
		}),
	}
}

// Schema builds the full, queryable graphql.Schema for root.
func Schema(root *Root) (graphql.Schema, error) {
	return graphql.NewSchema(graphql.SchemaConfig{Query: root.Query})
}

type request struct {
	Query string `json:"query"`
}

// Handler serves POSTed GraphQL queries against schema as JSON.
func Handler(schema graphql.Schema) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result := graphql.Do(graphql.Params{Schema: schema, RequestString: req.Query})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})
}
