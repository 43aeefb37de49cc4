package handler

import (
	"fmt"

	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/labstack/echo/v4"
)

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateClusterResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ClusterName string `json:"clusterName"`
}

type MoveResponse struct {
	Success bool `json:"success"`
	repository.MoveResult
}

type MergeResponse struct {
	Success bool `json:"success"`
	repository.MergeResult
}

// ClusterHandler serves the cluster browsing and reorganising endpoints.
type ClusterHandler struct {
	Handler
	clusters *service.ClusterService
}

func NewClusterHandler(s *server.Server, clusters *service.ClusterService) *ClusterHandler {
	return &ClusterHandler{
		Handler:  NewHandler(s),
		clusters: clusters,
	}
}

func (h *ClusterHandler) Previews(c echo.Context, _ *EmptyRequest) ([]repository.Preview, error) {
	return h.clusters.Previews()
}

func (h *ClusterHandler) PreviewsExtended(c echo.Context, _ *EmptyRequest) ([]repository.Preview, error) {
	return h.clusters.PreviewsExtended()
}

func (h *ClusterHandler) Info(c echo.Context, req *ClusterNameParam) (repository.ClusterStats, error) {
	return h.clusters.Info(req.Name)
}

func (h *ClusterHandler) NextNumber(c echo.Context, _ *EmptyRequest) (service.NextClusterNumber, error) {
	return h.clusters.NextNumber()
}

func (h *ClusterHandler) Create(c echo.Context, req *CreateClusterRequest) (CreateClusterResponse, error) {
	name, err := h.clusters.Create(req.ClusterName)
	if err != nil {
		return CreateClusterResponse{}, err
	}
	return CreateClusterResponse{
		Success:     true,
		Message:     fmt.Sprintf("Cluster %s created", name),
		ClusterName: name,
	}, nil
}

func (h *ClusterHandler) MoveToUndefined(c echo.Context, req *MoveToUndefinedRequest) (MoveResponse, error) {
	return moved(h.clusters.MoveToUndefined(req.Folder, []string{req.Item}))
}

func (h *ClusterHandler) MoveManyToUndefined(c echo.Context, req *MoveItemsRequest) (MoveResponse, error) {
	return moved(h.clusters.MoveToUndefined(req.Folder, req.Items))
}

func (h *ClusterHandler) MoveClusterToUndefined(c echo.Context, req *FolderRequest) (MoveResponse, error) {
	return moved(h.clusters.MoveClusterToUndefined(req.Folder))
}

func (h *ClusterHandler) MoveToCluster(c echo.Context, req *MoveToClusterRequest) (MoveResponse, error) {
	return moved(h.clusters.MoveToCluster(req.SourceFolder, req.TargetFolder, req.Items))
}

func (h *ClusterHandler) MoveToNewCluster(c echo.Context, req *MoveToNewClusterRequest) (MoveResponse, error) {
	return moved(h.clusters.MoveToNewCluster(req.SourceFolder, req.NewClusterName, req.Items))
}

func (h *ClusterHandler) Merge(c echo.Context, req *MergeRequest) (MergeResponse, error) {
	return merged(h.clusters.Merge(req.SourceCluster, req.TargetCluster))
}

func (h *ClusterHandler) MergeMany(c echo.Context, req *MergeManyRequest) (MergeResponse, error) {
	return merged(h.clusters.MergeMany(req.ClusterNames, req.TargetCluster))
}

// moved reports partial moves as a success with the per-item errors listed.
func moved(res repository.MoveResult, err error) (MoveResponse, error) {
	if err != nil {
		return MoveResponse{}, err
	}
	return MoveResponse{Success: true, MoveResult: res}, nil
}

func merged(res repository.MergeResult, err error) (MergeResponse, error) {
	if err != nil {
		return MergeResponse{}, err
	}
	return MergeResponse{Success: true, MergeResult: res}, nil
}
