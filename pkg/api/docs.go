// Package api provides the HTTP API for tools-api.
//
//	@title						Tools API
//	@version					1.0
//	@description				Various APIs to help you speed up your development and testing.
//	@description				Exit nodes, storage buckets, AWS sub-account credentials, cleanup workflows and manifests.
//
//	@contact.name				GlueOps
//	@contact.url				https://github.com/glueops/tools-api
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				API key. "Authorization: Bearer {key}" is accepted as well.
//
//	@tag.name					chisel
//	@tag.description			Chisel exit nodes for k3d clusters
//
//	@tag.name					storage
//	@tag.description			Observability storage buckets
//
//	@tag.name					aws
//	@tag.description			AWS sub-account credentials and cleanup
//
//	@tag.name					github
//	@tag.description			GitHub organization reset and workflow receipts
//
//	@tag.name					manifests
//	@tag.description			Kubernetes and Argo CD manifests
//
//	@tag.name					system
//	@tag.description			Health, version, metrics and audit
package api
