// Package mocks provides gomock implementations of the yuedu ports and
// repository interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	model := mocks.NewMockModelClient(ctrl)
//	model.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return(`{"translated_text":"Hello"}`, true)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_client_mock.go github.com/yuedu-lab/yuedu/internal/ports ModelClient

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=book_catalog_mock.go github.com/yuedu-lab/yuedu/internal/ports BookCatalog

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/yuedu-lab/yuedu/internal/core CacheRepository
