// Package graphql exposes a read-only GraphQL view over the building,
// routing and sensing state.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

// Source is the state the schema reads from. Every resolver is read-only;
// route queries use local mode so they never register an occupant.
type Source struct {
	Graph       *building.Graph
	Grid        *cells.Grid
	Coordinator *routing.Coordinator
	Aggregator  *sensing.Aggregator
	Evacuation  *evacuation.Service
}

type schemaBuilder struct {
	src Source

	node      *graphql.Object
	blockade  *graphql.Object
	alert     *graphql.Object
	occupant  *graphql.Object
	step      *graphql.Object
	route     *graphql.Object
	nodeLoad  *graphql.Object
	cell      *graphql.Object
	stats     *graphql.Object
	buildingT *graphql.Object
}

// GenerateSchema builds the query schema over src.
func GenerateSchema(src Source) (graphql.Schema, error) {
	if src.Graph == nil || src.Grid == nil || src.Coordinator == nil || src.Aggregator == nil || src.Evacuation == nil {
		return graphql.Schema{}, fmt.Errorf("graphql source is incomplete")
	}

	b := &schemaBuilder{src: src}
	b.defineTypes()

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: b.queryType(),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

func (b *schemaBuilder) defineTypes() {
	b.node = graphql.NewObject(graphql.ObjectConfig{
		Name: "Node",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
				"label":       &graphql.Field{Type: graphql.String},
				"displayName": &graphql.Field{Type: graphql.String},
				"feature":     &graphql.Field{Type: graphql.String},
				"x":           &graphql.Field{Type: graphql.Float},
				"y":           &graphql.Field{Type: graphql.Float},
				"isExit":      &graphql.Field{Type: graphql.Boolean},
				"cell":        &graphql.Field{Type: graphql.String},
				"neighbors": &graphql.Field{
					Type:    graphql.NewList(b.node),
					Resolve: b.resolveNeighbors,
				},
			}
		}),
	})

	b.blockade = graphql.NewObject(graphql.ObjectConfig{
		Name: "Blockade",
		Fields: graphql.Fields{
			"edge":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"from":       &graphql.Field{Type: graphql.String},
			"to":         &graphql.Field{Type: graphql.String},
			"reporterId": &graphql.Field{Type: graphql.String},
			"createdAt":  &graphql.Field{Type: graphql.Float, Description: "Unix milliseconds"},
		},
	})

	b.alert = graphql.NewObject(graphql.ObjectConfig{
		Name: "Alert",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"cellId":       &graphql.Field{Type: graphql.String},
			"timestamp":    &graphql.Field{Type: graphql.Float, Description: "Unix milliseconds"},
			"deviceCount":  &graphql.Field{Type: graphql.Int},
			"devices":      &graphql.Field{Type: graphql.NewList(graphql.String)},
			"avgIntensity": &graphql.Field{Type: graphql.Float},
			"maxIntensity": &graphql.Field{Type: graphql.Float},
			"confidence":   &graphql.Field{Type: graphql.Float},
			"status":       &graphql.Field{Type: graphql.String},
		},
	})

	b.occupant = graphql.NewObject(graphql.ObjectConfig{
		Name: "Occupant",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"status":    &graphql.Field{Type: graphql.String},
			"mode":      &graphql.Field{Type: graphql.String},
			"cell":      &graphql.Field{Type: graphql.String},
			"remaining": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"node": &graphql.Field{
				Type:    b.node,
				Resolve: b.resolveNodeRef("nodeId"),
			},
		},
	})

	b.step = graphql.NewObject(graphql.ObjectConfig{
		Name: "Step",
		Fields: graphql.Fields{
			"direction":   &graphql.Field{Type: graphql.String},
			"to":          &graphql.Field{Type: graphql.String},
			"distance":    &graphql.Field{Type: graphql.Float},
			"instruction": &graphql.Field{Type: graphql.String},
		},
	})

	b.route = graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"distance":   &graphql.Field{Type: graphql.Float},
			"path":       &graphql.Field{Type: graphql.NewList(graphql.String)},
			"directions": &graphql.Field{Type: graphql.NewList(b.step)},
			"exit": &graphql.Field{
				Type:    b.node,
				Resolve: b.resolveNodeRef("exitId"),
			},
		},
	})

	b.nodeLoad = graphql.NewObject(graphql.ObjectConfig{
		Name: "NodeLoad",
		Fields: graphql.Fields{
			"occupants": &graphql.Field{Type: graphql.Int},
			"node": &graphql.Field{
				Type:    b.node,
				Resolve: b.resolveNodeRef("nodeId"),
			},
		},
	})

	b.cell = graphql.NewObject(graphql.ObjectConfig{
		Name: "Cell",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"x":         &graphql.Field{Type: graphql.Int},
			"y":         &graphql.Field{Type: graphql.Int},
			"neighbors": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"alert": &graphql.Field{
				Type:    b.alert,
				Resolve: b.resolveCellAlert,
			},
		},
	})

	b.stats = graphql.NewObject(graphql.ObjectConfig{
		Name: "SensingStats",
		Fields: graphql.Fields{
			"totalEvents":   &graphql.Field{Type: graphql.Int},
			"totalAlerts":   &graphql.Field{Type: graphql.Int},
			"activeDevices": &graphql.Field{Type: graphql.Int},
		},
	})

	b.buildingT = graphql.NewObject(graphql.ObjectConfig{
		Name: "Building",
		Fields: graphql.Fields{
			"name":      &graphql.Field{Type: graphql.String},
			"nodeCount": &graphql.Field{Type: graphql.Int},
			"edgeCount": &graphql.Field{Type: graphql.Int},
			"exits":     &graphql.Field{Type: graphql.NewList(b.node)},
			"rooms":     &graphql.Field{Type: graphql.NewList(b.node)},
		},
	})
}

func (b *schemaBuilder) queryType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"health": &graphql.Field{
				Type: graphql.String,
				Resolve: func(graphql.ResolveParams) (any, error) {
					return "ok", nil
				},
			},
			"building": &graphql.Field{
				Type:    b.buildingT,
				Resolve: b.resolveBuilding,
			},
			"node": &graphql.Field{
				Type: b.node,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.resolveNode,
			},
			"nodes": &graphql.Field{
				Type: graphql.NewList(b.node),
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.String, Description: "Substring of id or label"},
				},
				Resolve: b.resolveNodes,
			},
			"blockades": &graphql.Field{
				Type:    graphql.NewList(b.blockade),
				Resolve: b.resolveBlockades,
			},
			"congestion": &graphql.Field{
				Type:    graphql.NewList(b.nodeLoad),
				Resolve: b.resolveCongestion,
			},
			"occupants": &graphql.Field{
				Type: graphql.NewList(b.occupant),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: b.resolveOccupants,
			},
			"alerts": &graphql.Field{
				Type: graphql.NewList(b.alert),
				Args: graphql.FieldConfigArgument{
					"cell": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: b.resolveAlerts,
			},
			"cell": &graphql.Field{
				Type: b.cell,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.resolveCell,
			},
			"sensingStats": &graphql.Field{
				Type:    b.stats,
				Resolve: b.resolveStats,
			},
			"route": &graphql.Field{
				Type:        b.route,
				Description: "Nearest reachable exit from a node, ignoring congestion",
				Args: graphql.FieldConfigArgument{
					"from": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.resolveRoute,
			},
		},
	})
}
