//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"net/http"
)

// OpenAPISpec represents the OpenAPI v3 specification.
type OpenAPISpec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       OpenAPIInfo            `json:"info"`
	Servers    []OpenAPIServer        `json:"servers"`
	Paths      map[string]OpenAPIPath `json:"paths"`
	Components OpenAPIComponents      `json:"components"`
}

// OpenAPIInfo contains API metadata.
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenAPIServer describes a server.
type OpenAPIServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// OpenAPIPath contains operations for a path.
type OpenAPIPath struct {
	Get    *OpenAPIOperation `json:"get,omitempty"`
	Post   *OpenAPIOperation `json:"post,omitempty"`
	Put    *OpenAPIOperation `json:"put,omitempty"`
	Delete *OpenAPIOperation `json:"delete,omitempty"`
}

// OpenAPIOperation describes an API operation.
type OpenAPIOperation struct {
	Summary     string                     `json:"summary"`
	Description string                     `json:"description,omitempty"`
	OperationID string                     `json:"operationId"`
	Tags        []string                   `json:"tags,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters,omitempty"`
	RequestBody *OpenAPIRequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]OpenAPIResponse `json:"responses"`
}

// OpenAPIParameter describes a parameter.
type OpenAPIParameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Schema      OpenAPISchema `json:"schema"`
}

// OpenAPIRequestBody describes a request body.
type OpenAPIRequestBody struct {
	Description string                      `json:"description,omitempty"`
	Required    bool                        `json:"required"`
	Content     map[string]OpenAPIMediaType `json:"content"`
}

// OpenAPIResponse describes a response.
type OpenAPIResponse struct {
	Description string                      `json:"description"`
	Content     map[string]OpenAPIMediaType `json:"content,omitempty"`
}

// OpenAPIMediaType describes a media type.
type OpenAPIMediaType struct {
	Schema OpenAPISchema `json:"schema"`
}

// OpenAPISchema describes a schema.
type OpenAPISchema struct {
	Type        string                   `json:"type,omitempty"`
	Format      string                   `json:"format,omitempty"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]OpenAPISchema `json:"properties,omitempty"`
	Items       *OpenAPISchema           `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Default     any                      `json:"default,omitempty"`
	Ref         string                   `json:"$ref,omitempty"`
}

// OpenAPIComponents contains reusable components.
type OpenAPIComponents struct {
	Schemas map[string]OpenAPISchema `json:"schemas"`
}

// handleOpenAPI handles the GET /v1/openapi.json endpoint.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, BuildOpenAPISpec())
}

func jsonContent(schema string) map[string]OpenAPIMediaType {
	return map[string]OpenAPIMediaType{
		"application/json": {
			Schema: OpenAPISchema{Ref: "#/components/schemas/" + schema},
		},
	}
}

func jsonResponse(description, schema string) OpenAPIResponse {
	return OpenAPIResponse{Description: description, Content: jsonContent(schema)}
}

func errorResponse(description string) OpenAPIResponse {
	return jsonResponse(description, "ErrorResponse")
}

var topicParameter = OpenAPIParameter{
	Name:        "topic",
	In:          "path",
	Description: "Analyzed topic, URL encoded",
	Required:    true,
	Schema:      OpenAPISchema{Type: "string"},
}

func stringProp(description string) OpenAPISchema {
	return OpenAPISchema{Type: "string", Description: description}
}

func stringList(description string) OpenAPISchema {
	return OpenAPISchema{Type: "array", Description: description, Items: &OpenAPISchema{Type: "string"}}
}

// BuildOpenAPISpec constructs the OpenAPI v3 specification.
// This is exported so it can be used to generate static documentation.
func BuildOpenAPISpec() OpenAPISpec {
	return OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "pgEdge Venture Scout API",
			Description: "REST API for multi-agent startup topic analysis and questions about the resulting reports",
			Version:     "1.0.0",
		},
		Servers: []OpenAPIServer{
			{
				URL:         "/v1",
				Description: "API v1",
			},
		},
		Paths: map[string]OpenAPIPath{
			"/health": {
				Get: &OpenAPIOperation{
					Summary:     "Health check",
					Description: "Check if the server is running and healthy",
					OperationID: "getHealth",
					Tags:        []string{"System"},
					Responses: map[string]OpenAPIResponse{
						"200": jsonResponse("Server is healthy", "HealthResponse"),
					},
				},
			},
			"/analyses": {
				Get: &OpenAPIOperation{
					Summary:     "List analyses",
					Description: "List analyzed topics, most recently updated first",
					OperationID: "listAnalyses",
					Tags:        []string{"Analyses"},
					Responses: map[string]OpenAPIResponse{
						"200": jsonResponse("List of analyses", "AnalysesResponse"),
					},
				},
				Post: &OpenAPIOperation{
					Summary: "Analyze topic",
					Description: "Run the analysis pipeline for a topic and index the report for questions. " +
						"With stream=true progress is reported as Server-Sent Events ending with a done or error event.",
					OperationID: "analyzeTopic",
					Tags:        []string{"Analyses"},
					RequestBody: &OpenAPIRequestBody{
						Description: "Analysis request",
						Required:    true,
						Content:     jsonContent("AnalyzeRequest"),
					},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Completed analysis",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{Ref: "#/components/schemas/AnalysisResponse"},
								},
								"text/event-stream": {
									Schema: OpenAPISchema{Ref: "#/components/schemas/StreamEvent"},
								},
							},
						},
						"400": errorResponse("Invalid request"),
						"502": errorResponse("Pipeline failed"),
					},
				},
			},
			"/analyses/{topic}": {
				Get: &OpenAPIOperation{
					Summary:     "Get analysis",
					Description: "Get the report of a topic with its sections and extracted insights",
					OperationID: "getAnalysis",
					Tags:        []string{"Analyses"},
					Parameters:  []OpenAPIParameter{topicParameter},
					Responses: map[string]OpenAPIResponse{
						"200": jsonResponse("Analysis", "AnalysisDetail"),
						"404": errorResponse("Topic not found"),
					},
				},
				Delete: &OpenAPIOperation{
					Summary:     "Delete analysis",
					Description: "Forget a topic with its index and transcript",
					OperationID: "deleteAnalysis",
					Tags:        []string{"Analyses"},
					Parameters:  []OpenAPIParameter{topicParameter},
					Responses: map[string]OpenAPIResponse{
						"204": {Description: "Deleted"},
						"404": errorResponse("Topic not found"),
					},
				},
			},
			"/analyses/{topic}/questions": {
				Post: &OpenAPIOperation{
					Summary:     "Ask question",
					Description: "Answer a question from the report of a topic, using the recent conversation",
					OperationID: "askQuestion",
					Tags:        []string{"Questions"},
					Parameters:  []OpenAPIParameter{topicParameter},
					RequestBody: &OpenAPIRequestBody{
						Description: "Question",
						Required:    true,
						Content:     jsonContent("QuestionRequest"),
					},
					Responses: map[string]OpenAPIResponse{
						"200": jsonResponse("Answer", "QuestionResponse"),
						"400": errorResponse("Invalid request"),
						"404": errorResponse("Topic not found"),
						"409": errorResponse("Question answering is not available for this topic, or the topic was re-analyzed while answering"),
					},
				},
			},
			"/analyses/{topic}/history": {
				Get: &OpenAPIOperation{
					Summary:     "Get history",
					Description: "Get the question and answer transcript of a topic",
					OperationID: "getHistory",
					Tags:        []string{"Questions"},
					Parameters:  []OpenAPIParameter{topicParameter},
					Responses: map[string]OpenAPIResponse{
						"200": jsonResponse("Transcript", "HistoryResponse"),
						"404": errorResponse("Topic not found"),
					},
				},
			},
			"/analyses/{topic}/export": {
				Get: &OpenAPIOperation{
					Summary:     "Export analysis",
					Description: "Download the report as markdown or as JSON with extracted insights",
					OperationID: "exportAnalysis",
					Tags:        []string{"Analyses"},
					Parameters: []OpenAPIParameter{
						topicParameter,
						{
							Name:        "format",
							In:          "query",
							Description: "Export format",
							Schema:      OpenAPISchema{Type: "string", Default: "md"},
						},
					},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Exported report",
							Content: map[string]OpenAPIMediaType{
								"text/markdown": {Schema: OpenAPISchema{Type: "string"}},
								"application/json": {
									Schema: OpenAPISchema{Ref: "#/components/schemas/ExportDocument"},
								},
							},
						},
						"400": errorResponse("Unknown format"),
						"404": errorResponse("Topic not found"),
					},
				},
			},
		},
		Components: OpenAPIComponents{
			Schemas: map[string]OpenAPISchema{
				"HealthResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"status":      stringProp("Health status"),
						"rag_enabled": {Type: "boolean", Description: "Whether question answering is enabled"},
					},
					Required: []string{"status", "rag_enabled"},
				},
				"AnalyzeRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"topic": stringProp("Startup topic to analyze, used verbatim as the session key"),
						"model": stringProp("Model for this run and for questions on its report; defaults to the configured model"),
						"temperature": {
							Type:        "number",
							Description: "Sampling temperature between 0 and 2 for this run and its questions",
						},
						"stream": {
							Type:        "boolean",
							Description: "Report progress as Server-Sent Events",
							Default:     false,
						},
					},
					Required: []string{"topic"},
				},
				"AnalysisResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"run_id":              stringProp("Pipeline run identifier"),
						"topic":               stringProp("Analyzed topic"),
						"model":               stringProp("Model the report was produced with"),
						"analysis":            stringProp("Markdown report"),
						"rag_available":       {Type: "boolean", Description: "Whether questions can be asked"},
						"rag_error":           stringProp("Why question answering could not be prepared"),
						"suggested_questions": stringList("Follow-up questions"),
					},
					Required: []string{"run_id", "topic", "analysis", "rag_available"},
				},
				"StreamEvent": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"type": stringProp("progress, done or error"),
						"progress": {
							Type: "object",
							Properties: map[string]OpenAPISchema{
								"progress": {Type: "integer", Description: "Percent complete"},
								"status":   stringProp("Current step"),
							},
						},
						"result": {Ref: "#/components/schemas/AnalysisResponse"},
						"error":  {Ref: "#/components/schemas/ErrorDetail"},
					},
					Required: []string{"type"},
				},
				"AnalysisInfo": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"topic":         stringProp("Analyzed topic"),
						"created_at":    {Type: "string", Format: "date-time"},
						"updated_at":    {Type: "string", Format: "date-time"},
						"rag_available": {Type: "boolean"},
						"turns":         {Type: "integer", Description: "Questions answered"},
					},
					Required: []string{"topic", "created_at", "updated_at", "rag_available", "turns"},
				},
				"AnalysesResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"analyses": {
							Type:  "array",
							Items: &OpenAPISchema{Ref: "#/components/schemas/AnalysisInfo"},
						},
					},
					Required: []string{"analyses"},
				},
				"AnalysisDetail": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"topic":         stringProp("Analyzed topic"),
						"created_at":    {Type: "string", Format: "date-time"},
						"updated_at":    {Type: "string", Format: "date-time"},
						"rag_available": {Type: "boolean"},
						"turns":         {Type: "integer"},
						"analysis":      stringProp("Markdown report"),
						"sections": {
							Type: "array",
							Items: &OpenAPISchema{
								Type: "object",
								Properties: map[string]OpenAPISchema{
									"name":    stringProp("Section name"),
									"content": stringProp("Section text or a placeholder"),
									"found":   {Type: "boolean"},
								},
							},
						},
						"insights": {
							Type: "object",
							Properties: map[string]OpenAPISchema{
								"marketMetrics":    {Ref: "#/components/schemas/MarketMetrics"},
								"businessInsights": {Ref: "#/components/schemas/BusinessInsights"},
							},
						},
						"suggested_questions": stringList("Follow-up questions"),
					},
					Required: []string{"topic", "analysis", "sections", "insights"},
				},
				"MarketMetrics": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"projectedSize": {Type: "number", Description: "Five year projected market size in millions of dollars"},
						"cagr":          {Type: "number", Description: "Compound annual growth rate in percent"},
						"timeToMarket":  {Type: "integer", Description: "Months"},
						"breakEven":     stringProp("Break-even estimate"),
					},
				},
				"BusinessInsights": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"initialInvestment": stringProp("Recommended initial investment"),
						"recommendedModel":  stringProp("Recommended business model"),
						"keyRisks":          stringList("Key risks"),
						"successFactors":    stringList("Success factors"),
					},
				},
				"ExportDocument": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"topic":            stringProp("Analyzed topic"),
						"analysis":         stringProp("Markdown report"),
						"marketMetrics":    {Ref: "#/components/schemas/MarketMetrics"},
						"businessInsights": {Ref: "#/components/schemas/BusinessInsights"},
					},
					Required: []string{"topic", "analysis", "marketMetrics", "businessInsights"},
				},
				"QuestionRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"question": stringProp("The question to answer"),
						"include_sources": {
							Type:        "boolean",
							Description: "Include the report chunks used for the answer",
							Default:     false,
						},
					},
					Required: []string{"question"},
				},
				"QuestionResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"answer":   stringProp("The generated answer"),
						"fallback": {Type: "boolean", Description: "True when no answer could be produced"},
						"sources": {
							Type:        "array",
							Description: "Report chunks (only if include_sources=true)",
							Items:       &OpenAPISchema{Ref: "#/components/schemas/Source"},
						},
					},
					Required: []string{"answer", "fallback"},
				},
				"Source": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"chunk":   {Type: "integer", Description: "Chunk position in the report"},
						"content": stringProp("Chunk text"),
						"score": {
							Type:        "number",
							Format:      "double",
							Description: "Relevance score",
						},
					},
					Required: []string{"chunk", "content", "score"},
				},
				"Message": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"id":         stringProp("Message identifier"),
						"role":       stringProp("Message role (user or assistant)"),
						"content":    stringProp("Message content"),
						"created_at": {Type: "string", Format: "date-time"},
					},
					Required: []string{"id", "role", "content", "created_at"},
				},
				"HistoryResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"topic": stringProp("Analyzed topic"),
						"messages": {
							Type:  "array",
							Items: &OpenAPISchema{Ref: "#/components/schemas/Message"},
						},
					},
					Required: []string{"topic", "messages"},
				},
				"ErrorResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"error": {
							Ref: "#/components/schemas/ErrorDetail",
						},
					},
					Required: []string{"error"},
				},
				"ErrorDetail": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"code":    stringProp("Error code"),
						"message": stringProp("Error message"),
					},
					Required: []string{"code", "message"},
				},
			},
		},
	}
}
