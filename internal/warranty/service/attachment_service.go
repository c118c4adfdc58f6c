package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

// ObjectStorage 对象存储，*minio.Client 满足该接口
type ObjectStorage interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// AttachmentService 工单行附件（故障照片、诊断报告）
type AttachmentService struct {
	*runner
	objects ObjectStorage
	bucket  string
}

// UploadRequest 上传附件
type UploadRequest struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentView 附件与临时下载地址
type AttachmentView struct {
	entity.LineAttachment
	URL string `json:"url,omitempty"`
}

// Upload 上传附件到对象存储并登记
func (s *AttachmentService) Upload(ctx context.Context, lineID string, req UploadRequest, actorID string) (*entity.LineAttachment, error) {
	if s.objects == nil {
		return nil, apperr.New(apperr.KindValidation, "未配置对象存储，无法上传附件")
	}
	if req.FileName == "" || req.Size <= 0 {
		return nil, apperr.Validation("附件文件名与大小必填")
	}
	line, err := s.store.Lines().Get(ctx, lineID)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := fmt.Sprintf("case-lines/%s/%s-%s", line.ID, id, path.Base(req.FileName))
	if _, err := s.objects.PutObject(ctx, s.bucket, key, req.Body, req.Size, minio.PutObjectOptions{
		ContentType: req.ContentType,
	}); err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}

	att := &entity.LineAttachment{
		ID:          id,
		CaseLineID:  line.ID,
		FileName:    req.FileName,
		ObjectKey:   key,
		ContentType: req.ContentType,
		Size:        req.Size,
		UploadedBy:  actorID,
		CreatedAt:   s.now(),
	}
	if err := s.store.Attachments().Create(ctx, att); err != nil {
		return nil, fmt.Errorf("登记附件失败: %w", err)
	}
	return att, nil
}

// List 工单行附件，带 15 分钟有效的下载地址
func (s *AttachmentService) List(ctx context.Context, lineID string) ([]AttachmentView, error) {
	if _, err := s.store.Lines().Get(ctx, lineID); err != nil {
		return nil, err
	}
	atts, err := s.store.Attachments().ListByLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	out := make([]AttachmentView, 0, len(atts))
	for _, a := range atts {
		v := AttachmentView{LineAttachment: a}
		if s.objects != nil {
			if u, err := s.objects.PresignedGetObject(ctx, s.bucket, a.ObjectKey, 15*time.Minute, nil); err == nil {
				v.URL = u.String()
			}
		}
		out = append(out, v)
	}
	return out, nil
}
