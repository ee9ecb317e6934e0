package credentials

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// BlobAttachment locates a credential blob stored as an Azure Blob attachment.
type BlobAttachment struct {
	AccountName string
	AccessKey   string
	Container   string
	Blob        string
	ServiceURL  string // optional, defaults to the public blob endpoint
}

// BlobClient abstracts the part of the Azure blob client the source needs
type BlobClient interface {
	DownloadStream(ctx context.Context, options *blob.DownloadStreamOptions) (blob.DownloadStreamResponse, error)
}

// BlobSource downloads the credential blob from Azure Blob Storage.
type BlobSource struct {
	client      BlobClient
	description string
}

// NewBlobSource creates a shared-key blob client for the attachment.
func NewBlobSource(att BlobAttachment) (*BlobSource, error) {
	if att.AccountName == "" || att.AccessKey == "" {
		return nil, fmt.Errorf("blob attachment requires account_name and access_key")
	}
	if att.Container == "" || att.Blob == "" {
		return nil, fmt.Errorf("blob attachment requires container and blob")
	}

	cred, err := azblob.NewSharedKeyCredential(att.AccountName, att.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure shared key credential: %w", err)
	}

	serviceURL := att.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", att.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	blobClient := client.ServiceClient().NewContainerClient(att.Container).NewBlobClient(att.Blob)
	return NewBlobSourceWithClient(blobClient, fmt.Sprintf("blob %s/%s/%s", att.AccountName, att.Container, att.Blob)), nil
}

// NewBlobSourceWithClient wraps an existing blob client.
func NewBlobSourceWithClient(client BlobClient, description string) *BlobSource {
	return &BlobSource{client: client, description: description}
}

func (s *BlobSource) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download credential blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential blob: %w", err)
	}
	return data, nil
}

func (s *BlobSource) Describe() string { return s.description }
